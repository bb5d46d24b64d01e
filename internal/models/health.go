package models

import "time"

type HealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	StartTime     time.Time `json:"startTime"`
	StackFault    bool      `json:"stackFault"`
	TotalRequests int64     `json:"totalRequests"`
	ErrorRequests int64     `json:"errorRequests"`
}
