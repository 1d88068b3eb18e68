package dto

type PermissionRequest struct {
	Granted *bool `json:"granted"`
}

type ReengagementRequest struct {
	DelayHours int `json:"delay_hours"`
}

type NextUpResponse struct {
	Outcome string `json:"outcome"`
}
