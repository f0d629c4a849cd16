package remote

// S3Config selects the S3 endpoint. Empty credentials fall back to the default AWS
// credential chain (environment, shared config, instance role).
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}
