package config

import (
	"time"

	"github.com/spf13/viper"
)

// Database is the SQL store behind the quota ledger.
type Database struct {
	Driver          string        `json:"driver" yaml:"driver"`
	Source          string        `json:"source" yaml:"source"`
	MaxIdleConn     int           `json:"max_idle_conn" yaml:"max_idle_conn"`
	MaxOpenConn     int           `json:"max_open_conn" yaml:"max_open_conn"`
	ConnMaxLifeTime time.Duration `json:"conn_max_life_time" yaml:"conn_max_life_time"`
	// Migrate applies the ledger schema when the server starts.
	Migrate bool `json:"migrate" yaml:"migrate"`
}

func getDatabaseConfig(v *viper.Viper) *Database {
	return &Database{
		Driver:          str(v, "data.database.driver", "sqlite3"),
		Source:          v.GetString("data.database.source"),
		MaxIdleConn:     positive(v, "data.database.max_idle_conn", 5),
		MaxOpenConn:     positive(v, "data.database.max_open_conn", 20),
		ConnMaxLifeTime: span(v, "data.database.conn_max_life_time", 30*time.Minute),
		Migrate:         v.GetBool("data.database.migrate"),
	}
}

// Redis holds job state, dedup markers and the quota cache.
type Redis struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Username     string        `json:"username" yaml:"username"`
	Password     string        `json:"password" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	TLS          bool          `json:"tls" yaml:"tls"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

func getRedisConfig(v *viper.Viper) *Redis {
	return &Redis{
		Addr:         v.GetString("data.redis.addr"),
		Username:     v.GetString("data.redis.username"),
		Password:     v.GetString("data.redis.password"),
		DB:           v.GetInt("data.redis.db"),
		TLS:          v.GetBool("data.redis.tls"),
		PoolSize:     positive(v, "data.redis.pool_size", 10),
		ReadTimeout:  span(v, "data.redis.read_timeout", 3*time.Second),
		WriteTimeout: span(v, "data.redis.write_timeout", 3*time.Second),
		DialTimeout:  span(v, "data.redis.dial_timeout", 5*time.Second),
	}
}
