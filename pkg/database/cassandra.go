package database

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"nurselink-backend/pkg/config"
)

// CassandraDB wraps a gocql session
type CassandraDB struct {
	Session *gocql.Session
}

// NewCassandraDB creates a new Cassandra session for the call audit log
func NewCassandraDB(cfg *config.CassandraConfig) (*CassandraDB, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = cfg.Timeout

	cluster.NumConns = 2
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        time.Second,
		Max:        10 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	return &CassandraDB{Session: session}, nil
}

// Close closes the Cassandra session
func (db *CassandraDB) Close() {
	db.Session.Close()
}
