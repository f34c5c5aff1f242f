// Package config loads batchd configuration with Viper.
//
// Values come from a YAML file (the -conf flag, or config.yaml in
// /etc/batchd, $HOME/.batchd, the working directory or next to the binary)
// and are overridden by BATCHD_* environment variables, where dots become
// underscores:
//
//	export BATCHD_SERVER_PORT=9000
//	export BATCHD_DATA_REDIS_ADDR=redis:6379
//	export BATCHD_AUTH_WEBHOOK_SECRET=...
//
// Watch reloads the file on change and hands the new Config to a callback;
// the server uses it to apply log level changes without a restart.
package config
