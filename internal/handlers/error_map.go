package handlers

import (
	"net/http"

	"market-system/internal/apperror"
	"market-system/internal/logger"
)

func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string) {
	switch {
	case apperror.Is(err, apperror.KindNotFound):
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case apperror.Is(err, apperror.KindValidation):
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case apperror.Is(err, apperror.KindConflict):
		writeErrorResponse(w, http.StatusConflict, err.Error())
	default:
		if log != nil {
			entry := log.WithError(err)
			if apperror.Is(err, apperror.KindPersistence) {
				entry = entry.WithField("kind", apperror.KindPersistence)
			}
			entry.Error(internalMessage)
		}
		writeErrorResponse(w, http.StatusInternalServerError, internalMessage)
	}
}
