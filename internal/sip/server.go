// Package sip hosts the SIP side of the gateway: the listening server,
// the upstream trunk registration and the trunk IP firewall.
package sip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/voicegate/voicegate/internal/config"
)

// CallHandler receives the call-establishing SIP requests. The gateway
// implements it; everything else (OPTIONS pings) is answered here.
type CallHandler interface {
	OnInvite(req *sip.Request, tx sip.ServerTransaction)
	OnAck(req *sip.Request, tx sip.ServerTransaction)
	OnBye(req *sip.Request, tx sip.ServerTransaction)
	OnCancel(req *sip.Request, tx sip.ServerTransaction)
}

// Server wraps the sipgo stack with the gateway's handlers.
type Server struct {
	cfg       *config.Config
	ua        *sipgo.UserAgent
	srv       *sipgo.Server
	client    *sipgo.Client
	dialogs   *sipgo.DialogServerCache
	registrar *Registrar
	handler   CallHandler
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewServer creates the SIP server and its trunk registrar. SetHandler must
// be called before Start.
func NewServer(cfg *config.Config) (*Server, error) {
	logger := slog.Default().With("component", "sip")

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent("VoiceGate"),
		sipgo.WithUserAgentHostname(cfg.MediaIP()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sip user agent: %w", err)
	}

	srv, err := sipgo.NewServer(ua,
		sipgo.WithServerLogger(logger),
	)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("creating sip server: %w", err)
	}

	registrar, err := NewRegistrar(ua, cfg, logger)
	if err != nil {
		srv.Close()
		ua.Close()
		return nil, fmt.Errorf("creating trunk registrar: %w", err)
	}

	client, err := sipgo.NewClient(ua,
		sipgo.WithClientLogger(logger),
	)
	if err != nil {
		srv.Close()
		ua.Close()
		return nil, fmt.Errorf("creating sip client: %w", err)
	}

	contactHDR := sip.ContactHeader{
		Address: sip.Uri{
			User: cfg.TrunkUser,
			Host: cfg.MediaIP(),
			Port: cfg.SIPPort,
		},
	}

	s := &Server{
		cfg:       cfg,
		ua:        ua,
		srv:       srv,
		client:    client,
		dialogs:   sipgo.NewDialogServerCache(client, contactHDR),
		registrar: registrar,
		logger:    logger,
	}
	return s, nil
}

// Dialogs returns the dialog tracker used to answer and tear down calls.
func (s *Server) Dialogs() *sipgo.DialogServerCache {
	return s.dialogs
}

// SetHandler wires the gateway in and registers the SIP method handlers.
func (s *Server) SetHandler(h CallHandler) {
	s.handler = h
	s.srv.OnInvite(h.OnInvite)
	s.srv.OnAck(h.OnAck)
	s.srv.OnBye(h.OnBye)
	s.srv.OnCancel(h.OnCancel)
	s.srv.OnOptions(s.handleOptions)
}

// Start begins listening and kicks off the trunk registration. It returns
// once the listeners are launched.
func (s *Server) Start(ctx context.Context) error {
	if s.handler == nil {
		return fmt.Errorf("no call handler set")
	}

	ctx, s.cancel = context.WithCancel(ctx)

	udpAddr := fmt.Sprintf("0.0.0.0:%d", s.cfg.SIPPort)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("sip udp listener starting", "addr", udpAddr)
		if err := s.srv.ListenAndServe(ctx, "udp", udpAddr); err != nil {
			s.logger.Error("sip udp listener stopped", "error", err)
		}
	}()

	if s.cfg.TrunkTransport == "tcp" {
		tcpAddr := fmt.Sprintf("0.0.0.0:%d", s.cfg.SIPPort)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logger.Info("sip tcp listener starting", "addr", tcpAddr)
			if err := s.srv.ListenAndServe(ctx, "tcp", tcpAddr); err != nil {
				s.logger.Error("sip tcp listener stopped", "error", err)
			}
		}()
	}

	if s.cfg.TrunkHost != "" {
		s.registrar.Start()
	} else {
		s.logger.Warn("no trunk host configured, skipping registration")
	}

	return nil
}

// Stop shuts down the registrar and all listeners.
func (s *Server) Stop() {
	s.logger.Info("stopping sip server")
	s.registrar.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.srv.Close()
	s.ua.Close()
	s.logger.Info("sip server stopped")
}

// Registrar returns the trunk registrar for status queries.
func (s *Server) Registrar() *Registrar {
	return s.registrar
}

// UserAgent exposes the underlying user agent for outbound requests.
func (s *Server) UserAgent() *sipgo.UserAgent {
	return s.ua
}

// handleOptions answers keepalive pings from the trunk.
func (s *Server) handleOptions(req *sip.Request, tx sip.ServerTransaction) {
	s.logger.Debug("sip options received", "source", req.Source())

	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	res.AppendHeader(sip.NewHeader("Accept", "application/sdp"))
	res.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, CANCEL, BYE, OPTIONS"))

	if err := tx.Respond(res); err != nil {
		s.logger.Error("failed to respond to options", "error", err)
	}
}
