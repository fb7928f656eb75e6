package Snowflake

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init picks the node number embedded in generated ids. Without it the
// first GenerateId uses node 1.
func Init(workId int64) error {
	n, err := snowflake.NewNode(workId)
	if err != nil {
		return errors.Wrapf(err, "snowflake node %d", workId)
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// GenerateId returns a process unique id for tagging pusher logs.
func GenerateId() int64 {
	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	return node.Generate().Int64()
}
