package config

import "github.com/spf13/viper"

// Storage blob storage config. Provider is "filesystem" or "s3"; S3
// compatible services set Endpoint and PathStyle.
type Storage struct {
	Provider  string `json:"provider" yaml:"provider"`
	ID        string `json:"id" yaml:"id"`
	Secret    string `json:"secret" yaml:"secret"`
	Region    string `json:"region" yaml:"region"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	PathStyle bool   `json:"path_style" yaml:"path_style"`
	Path      string `json:"path" yaml:"path"`
	PublicURL string `json:"public_url" yaml:"public_url"`
	MaxUpload int64  `json:"max_upload" yaml:"max_upload"`
}

// getStorageConfig get storage config
func getStorageConfig(v *viper.Viper) *Storage {
	return &Storage{
		Provider:  getStringOrDefault(v, "storage.provider", "filesystem"),
		ID:        v.GetString("storage.id"),
		Secret:    v.GetString("storage.secret"),
		Region:    getStringOrDefault(v, "storage.region", "us-east-1"),
		Bucket:    v.GetString("storage.bucket"),
		Endpoint:  v.GetString("storage.endpoint"),
		PathStyle: v.GetBool("storage.path_style"),
		Path:      getStringOrDefault(v, "storage.path", "./uploads"),
		PublicURL: v.GetString("storage.public_url"),
		MaxUpload: getInt64OrDefault(v, "storage.max_upload", 20<<20),
	}
}
