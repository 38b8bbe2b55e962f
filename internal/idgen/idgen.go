package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator выдаёт уникальные, упорядоченные по времени идентификаторы
type Generator interface {
	NextID() int64
}

// Snowflake генератор на основе bwmarrin/snowflake
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake создаёт генератор для узла nodeID (0..1023)
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &Snowflake{node: node}, nil
}

// NextID возвращает следующий идентификатор
func (s *Snowflake) NextID() int64 {
	return s.node.Generate().Int64()
}
