// Package nodes reads the set of live broker nodes from an external store.
// The broker keeps no membership state of its own: every identifier a
// Directory reports is treated as an available node, and no Directory ever
// writes to its store.
package nodes

import (
	"context"
	"fmt"
	"io"
	"strings"

	configpkg "github.com/drblury/localbroker/internal/runtime/config"
	errspkg "github.com/drblury/localbroker/internal/runtime/errors"
)

// Node describes one broker process.
type Node struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
}

// Directory lists the identifiers of the nodes currently recorded in a store.
type Directory interface {
	NodeIDs(ctx context.Context) ([]string, error)
}

// List queries dir and reports every returned identifier as available.
func List(ctx context.Context, dir Directory) ([]Node, error) {
	if dir == nil {
		return nil, errspkg.ErrDirectoryRequired
	}
	nodeIDs, err := dir.NodeIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		out = append(out, Node{ID: id, Available: true})
	}
	return out, nil
}

// Static is a fixed list of node identifiers.
type Static []string

func (s Static) NodeIDs(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// FromConfig builds the directory selected by cfg.NodeDirectory. The returned
// closer releases the store connection and is never nil.
func FromConfig(cfg *configpkg.Config) (Directory, io.Closer, error) {
	if cfg == nil {
		return nil, nil, errspkg.ErrConfigRequired
	}
	switch strings.ToLower(cfg.NodeDirectory) {
	case "", configpkg.DirectoryStatic:
		ids := cfg.StaticNodes
		if len(ids) == 0 && cfg.NodeID != "" {
			ids = []string{cfg.NodeID}
		}
		return Static(ids), nopCloser{}, nil
	case configpkg.DirectoryRedis:
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisDirectory(client, cfg.RedisPrefix), client, nil
	case configpkg.DirectorySQLite:
		dir, err := OpenSQLiteDirectory(cfg.SQLiteFile, cfg.SQLiteTable)
		if err != nil {
			return nil, nil, err
		}
		return dir, dir, nil
	default:
		return nil, nil, fmt.Errorf("unknown node directory %q", cfg.NodeDirectory)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
