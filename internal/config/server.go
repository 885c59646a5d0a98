package config

type ServerConfig struct {
	HTTP HTTPConfig `yaml:"http" envPrefix:"HTTP_"`
	GRPC GRPCConfig `yaml:"grpc" envPrefix:"GRPC_"`
}

type HTTPConfig struct {
	Host        string   `yaml:"host" env:"HOST"`
	Port        int      `yaml:"port" env:"PORT"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
}

type GRPCConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}
