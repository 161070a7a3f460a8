package main

import "time"

// API request and response models

// DispatchRequest is the request body for dispatching a batch of packets
type DispatchRequest struct {
	Type    string          `json:"type" example:"metric-alert" binding:"required"`
	Packets []PacketRequest `json:"packets" binding:"required"`
}

// PacketRequest is one inbound data packet
type PacketRequest struct {
	SourceID string `json:"sourceId" example:"12345" binding:"required"`
	Payload  any    `json:"payload"`
}

// DispatchResponse is the result of dispatching a batch
type DispatchResponse struct {
	Results      []PacketResult `json:"results"`
	DispatchTime string         `json:"dispatchTime" example:"1.2ms"`
}

// PacketResult pairs a packet with the detectors that matched it
type PacketResult struct {
	SourceID  string           `json:"sourceId" example:"12345"`
	Detectors []DetectorResult `json:"detectors"`
}

// DetectorResult describes one matched detector and whether its
// condition group triggered for the packet payload
type DetectorResult struct {
	ID        string `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Name      string `json:"name" example:"error spike"`
	Type      string `json:"type" example:"metric_issue"`
	Triggered bool   `json:"triggered" example:"true"`
}

// CreateDataSourceRequest is the request body for registering a data source
type CreateDataSourceRequest struct {
	SourceID string `json:"sourceId" example:"12345" binding:"required"`
	Type     string `json:"type" example:"metric-alert" binding:"required"`
}

// UpdateDataSourceRequest is the request body for updating a data source
type UpdateDataSourceRequest struct {
	SourceID string `json:"sourceId" example:"12345"`
	Type     string `json:"type" example:"metric-alert"`
}

// DataSourceResponse represents a data source in API responses
type DataSourceResponse struct {
	ID        string    `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	SourceID  string    `json:"sourceId" example:"12345"`
	Type      string    `json:"type" example:"metric-alert"`
	CreatedAt time.Time `json:"createdAt" example:"2026-01-15T10:30:00Z"`
	UpdatedAt time.Time `json:"updatedAt" example:"2026-01-15T10:30:00Z"`
}

// CreateDetectorRequest is the request body for creating a detector
type CreateDetectorRequest struct {
	Name           string                 `json:"name" example:"error spike" binding:"required"`
	Type           string                 `json:"type" example:"metric_issue" binding:"required"`
	Enabled        *bool                  `json:"enabled,omitempty" example:"true"`
	ConditionGroup *ConditionGroupRequest `json:"conditionGroup,omitempty"`
}

// ConditionGroupRequest describes a detector's trigger conditions
type ConditionGroupRequest struct {
	LogicType  string             `json:"logicType" example:"any"`
	Conditions []ConditionRequest `json:"conditions"`
}

// ConditionRequest is one condition inside a group
type ConditionRequest struct {
	Type            string `json:"type" example:"gt"`
	Comparison      any    `json:"comparison"`
	ConditionResult bool   `json:"conditionResult" example:"true"`
}

// UpdateDetectorRequest is the request body for updating a detector
type UpdateDetectorRequest struct {
	Name    string `json:"name" example:"error spike"`
	Type    string `json:"type" example:"metric_issue"`
	Enabled *bool  `json:"enabled,omitempty" example:"false"`
}

// DetectorResponse represents a detector in API responses
type DetectorResponse struct {
	ID        string    `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Name      string    `json:"name" example:"error spike"`
	Type      string    `json:"type" example:"metric_issue"`
	Enabled   bool      `json:"enabled" example:"true"`
	CreatedAt time.Time `json:"createdAt" example:"2026-01-15T10:30:00Z"`
	UpdatedAt time.Time `json:"updatedAt" example:"2026-01-15T10:30:00Z"`
}

// DeleteDetectorsRequest is the request body for bulk detector deletion
type DeleteDetectorsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}
