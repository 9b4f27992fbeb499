// Package version provides build and version information for the renderer service.
package version

// Version is the current release version of rendererd.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/SentientRenderer/internal/version.Version=x.y.z"
var Version = "0.1.0"

// Service is the service name reported by /health and the MQTT status topic.
const Service = "rendererd"
