package db

import "time"

// ServiceConfig represents a row in the service_configs table.
type ServiceConfig struct {
	Fullname string    `json:"fullname"`
	TypeKey  string    `json:"type_key"`
	Config   []byte    `json:"config"`
	Revision int       `json:"revision"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// ListServiceConfigsParams filters ListServiceConfigs. Zero values list everything.
type ListServiceConfigsParams struct {
	TypeKey string
	Limit   int
}
