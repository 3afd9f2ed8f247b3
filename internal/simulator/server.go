// internal/simulator/server.go
package simulator

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/simonvetter/modbus"
)

// Server serves one Meter over Modbus-TCP.
type Server struct {
	addr  string
	meter *Meter
	srv   *modbus.ModbusServer
	log   zerolog.Logger
}

// NewServer prepares a server listening on addr (host:port).
func NewServer(addr string, meter *Meter, log zerolog.Logger) (*Server, error) {
	srv, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        "tcp://" + addr,
		Timeout:    30 * time.Second,
		MaxClients: 8,
	}, meter)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	return &Server{addr: addr, meter: meter, srv: srv, log: log}, nil
}

// Start begins accepting connections.
func (s *Server) Start() error {
	if err := s.srv.Start(); err != nil {
		return fmt.Errorf("simulator: start %s: %w", s.addr, err)
	}
	s.log.Info().Str("listen", s.addr).Str("model", s.meter.Model()).Uint8("unit_id", s.meter.UnitID()).Msg("simulator started")
	return nil
}

// Stop closes the listener and all client connections.
func (s *Server) Stop() error {
	return s.srv.Stop()
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Meter returns the served meter.
func (s *Server) Meter() *Meter { return s.meter }
