package types

type HeartbeatRequest struct {
	DeviceSN  string `json:"dn"`
	Info      string `json:"info"`
	MachineNo string `json:"jihao,omitempty"`
	Status    string `json:"status,omitempty"`
}

type HeartbeatResponse struct {
	Known      bool   `json:"known"`
	DeviceSN   string `json:"dn"`
	ServerTime string `json:"server_time"`
}
