package models

import "time"

// ServiceType is the closed set of probe-able service kinds.
type ServiceType string

const (
	ServiceHTTP  ServiceType = "http"
	ServiceHTTPS ServiceType = "https"
	ServiceRTSP  ServiceType = "rtsp"
	ServiceMQTT  ServiceType = "mqtt"
	ServiceSSH   ServiceType = "ssh"
	ServiceAPI   ServiceType = "api"
	ServiceONVIF ServiceType = "onvif"
)

// ServiceStatus is a Service's last observed reachability.
type ServiceStatus string

const (
	ServiceOnline  ServiceStatus = "online"
	ServiceOffline ServiceStatus = "offline"
	ServiceUnknown ServiceStatus = "unknown"
)

// Device is a discovered network endpoint.
type Device struct {
	ID        string
	IP        string
	Hostname  string
	MAC       string
	Vendor    string
	FirstSeen time.Time
	LastSeen  time.Time
	UpdatedAt time.Time
}

// Service is a probed capability hosted on a Device.
type Service struct {
	ID          string
	DeviceID    string
	Type        ServiceType
	Port        int
	Path        string
	Status      ServiceStatus
	LastChecked time.Time
	Metadata    map[string]any
}

// TargetType distinguishes whether a snapshot/change/watch targets a Device
// or a Service directly.
type TargetType string

const (
	TargetDevice  TargetType = "device"
	TargetService TargetType = "service"
)

// ContentSnapshot is a canonicalized observation of a target at a point in
// time. At most one snapshot exists per (target, captured_at).
type ContentSnapshot struct {
	ID          string
	DeviceID    string // set when the snapshot targets a device
	ServiceID   string // set when the snapshot targets a service
	Content     []byte
	ContentType string
	Hash        string
	Size        int
	CapturedAt  time.Time
}

// TargetRef returns whichever of DeviceID/ServiceID is populated, alongside
// its TargetType. When both are set, ServiceID is returned.
func (s *ContentSnapshot) TargetRef() (id string, kind TargetType) {
	if s.ServiceID != "" {
		return s.ServiceID, TargetService
	}
	return s.DeviceID, TargetDevice
}

// ChangeType classifies what kind of delta a ChangeRecord represents.
type ChangeType string

const (
	ChangeContent  ChangeType = "content"
	ChangeStatus   ChangeType = "status"
	ChangeMetadata ChangeType = "metadata"
)

// ChangeRecord links two consecutive snapshots of the same target with a
// scored delta.
type ChangeRecord struct {
	ID                 string
	TargetID           string
	TargetType         TargetType
	PreviousSnapshotID string
	CurrentSnapshotID  string
	ChangeType         ChangeType
	ChangeScore        float64
	DetectedAt         time.Time
	HumanSummary       string
}
