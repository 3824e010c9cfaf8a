// Package simulator drives a running chat server with a population of
// synthetic users: they sign up, hold websocket sessions, exchange direct
// messages and drop in and out of connectivity.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"quickchat/internal/api"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type SimConfig struct {
	NumUsers         int
	SimulationTime   time.Duration
	MessageFrequency float64 // messages per connected user per minute
	ImageRatio       float64 // share of messages that carry an image instead of text
	DisconnectRate   float64
	ReconnectRate    float64
	Workers          int
	SignupRate       time.Duration // minimum gap between signup requests
	TickInterval     time.Duration
	MetricsInterval  time.Duration
	EngineURL        string
}

// DefaultConfig is a small run against a local server.
func DefaultConfig() SimConfig {
	return SimConfig{
		NumUsers:         10,
		SimulationTime:   5 * time.Minute,
		MessageFrequency: 6,
		ImageRatio:       0.1,
		DisconnectRate:   0.01,
		ReconnectRate:    0.05,
		Workers:          5,
		SignupRate:       50 * time.Millisecond,
		TickInterval:     500 * time.Millisecond,
		MetricsInterval:  10 * time.Second,
		EngineURL:        "http://localhost:5000",
	}
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	AverageLatency  time.Duration
	ActiveUsers     int
	MessagesSent    int
	PushesReceived  int
	SeenAcks        int
	Disconnects     int
	Reconnects      int
}

// SimulatedUser is one synthetic account and its current websocket, if any.
type SimulatedUser struct {
	ID       uuid.UUID
	FullName string
	Email    string
	Token    string

	mu         sync.Mutex
	conn       *websocket.Conn
	LastActive time.Time
}

// IsConnected reports whether the user currently holds a session.
func (u *SimulatedUser) IsConnected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn != nil
}

type Simulator struct {
	config SimConfig
	stats  *SimulationStats
	users  []*SimulatedUser
	client *http.Client
	dialer *websocket.Dialer
	log    *zap.SugaredLogger
	mu     sync.RWMutex
}

func NewSimulator(config SimConfig, log *zap.SugaredLogger) *Simulator {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.MetricsInterval <= 0 {
		config.MetricsInterval = defaults.MetricsInterval
	}
	if config.SignupRate <= 0 {
		config.SignupRate = defaults.SignupRate
	}
	return &Simulator{
		config: config,
		stats:  &SimulationStats{StartTime: time.Now()},
		client: &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		log:    log.With("component", "simulator"),
	}
}

// Run signs up the population, connects everyone and simulates traffic until
// ctx ends. Every session is closed before Run returns.
func (s *Simulator) Run(ctx context.Context) error {
	s.log.Infow("starting simulation", "users", s.config.NumUsers, "engine", s.config.EngineURL)

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer s.disconnectAll()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateMessaging(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateConnectivity(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()

	wg.Wait()
	return nil
}

func (s *Simulator) initialize(ctx context.Context) error {
	s.log.Infof("phase 1: creating %d users", s.config.NumUsers)
	if err := s.createInitialUsers(ctx); err != nil {
		return err
	}
	if len(s.users) < 2 {
		return fmt.Errorf("need at least 2 users to exchange messages, created %d", len(s.users))
	}

	s.log.Info("phase 2: opening sessions")
	for _, user := range s.users {
		if err := s.connect(ctx, user); err != nil {
			s.log.Warnw("initial connect failed", "user", user.Email, "error", err)
		}
	}
	return nil
}

func (s *Simulator) createInitialUsers(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make([]*SimulatedUser, 0, s.config.NumUsers)

	numWorkers := s.config.Workers
	userJobs := make(chan int, numWorkers)
	results := make(chan *SimulatedUser, numWorkers)

	var wg sync.WaitGroup

	// Shared by all workers
	rateLimiter := time.NewTicker(s.config.SignupRate)
	defer rateLimiter.Stop()

	runID := uuid.NewString()[:8]
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for userNum := range userJobs {
				select {
				case <-ctx.Done():
					continue
				case <-rateLimiter.C:
				}

				user := &SimulatedUser{
					FullName: fmt.Sprintf("Sim User %d", userNum),
					Email:    fmt.Sprintf("sim_%s_%d@quickchat.test", runID, userNum),
				}

				var err error
				for retries := 0; retries < 3; retries++ {
					if err = s.signup(ctx, user); err == nil {
						results <- user
						break
					}
					backoff := time.Duration(math.Pow(2, float64(retries))) * 100 * time.Millisecond
					s.log.Debugw("signup retry", "worker", workerID, "attempt", retries+1, "user", user.Email, "backoff", backoff, "error", err)
					select {
					case <-ctx.Done():
					case <-time.After(backoff):
					}
				}
				if err != nil {
					s.log.Warnw("signup failed after retries", "worker", workerID, "user", user.Email, "error", err)
				}
			}
		}(i)
	}

	go func() {
		defer close(userJobs)
		for i := 0; i < s.config.NumUsers; i++ {
			select {
			case <-ctx.Done():
				return
			case userJobs <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for user := range results {
		s.users = append(s.users, user)
		if len(s.users)%50 == 0 {
			s.log.Infof("progress: %d/%d users created", len(s.users), s.config.NumUsers)
		}
	}

	s.log.Infof("created %d users", len(s.users))
	return ctx.Err()
}

func (s *Simulator) signup(ctx context.Context, user *SimulatedUser) error {
	data := map[string]string{
		"fullName": user.FullName,
		"email":    user.Email,
		"password": "testpass123",
		"bio":      "simulated account",
	}
	resp, err := s.makeRequest(ctx, http.MethodPost, "/api/auth/signup", "", data)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}

	var result api.AuthResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("parse signup response: %w", err)
	}
	if result.UserData == nil || result.UserData.ID == uuid.Nil || result.Token == "" {
		return fmt.Errorf("signup response missing identity")
	}
	user.ID = result.UserData.ID
	user.Token = result.Token
	return nil
}

// makeRequest sends a JSON request and returns the body of a 2xx response.
func (s *Simulator) makeRequest(ctx context.Context, method, endpoint, token string, data interface{}) ([]byte, error) {
	var body []byte
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.EngineURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.recordRequestMetrics(start, err)
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 400 {
		err = fmt.Errorf("request failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}
	s.recordRequestMetrics(start, err)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Simulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++
	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

func (s *Simulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			s.log.Infow("simulation metrics",
				"elapsed", time.Since(s.stats.StartTime).Round(time.Second),
				"requestRate", fmt.Sprintf("%.2f/s", m.RequestsPerSecond),
				"averageLatency", m.AverageLatency,
				"activeUsers", fmt.Sprintf("%d/%d", m.ActiveUsers, m.TotalUsers),
				"messagesSent", m.MessagesSent,
				"pushesReceived", m.PushesReceived,
				"seenAcks", m.SeenAcks,
				"failedRequests", m.ErrorCount,
			)
		}
	}
}

// SimulationMetrics is a snapshot of the run so far.
type SimulationMetrics struct {
	TotalUsers        int
	ActiveUsers       int
	MessagesSent      int
	PushesReceived    int
	SeenAcks          int
	Disconnects       int
	Reconnects        int
	AverageLatency    time.Duration
	ErrorCount        int
	RequestsPerSecond float64
}

// DeliveryRatio is pushes received over messages sent. Messages to offline
// receivers are never pushed, so it stays below 1 when users disconnect.
func (m SimulationMetrics) DeliveryRatio() float64 {
	if m.MessagesSent == 0 {
		return 0
	}
	return float64(m.PushesReceived) / float64(m.MessagesSent)
}

// GetMetrics returns the current simulation metrics
func (s *Simulator) GetMetrics() SimulationMetrics {
	s.mu.RLock()
	totalUsers := len(s.users)
	active := 0
	for _, user := range s.users {
		if user.IsConnected() {
			active++
		}
	}
	s.mu.RUnlock()

	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	s.stats.ActiveUsers = active

	elapsed := time.Since(s.stats.StartTime).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.stats.TotalRequests) / elapsed
	}

	return SimulationMetrics{
		TotalUsers:        totalUsers,
		ActiveUsers:       active,
		MessagesSent:      s.stats.MessagesSent,
		PushesReceived:    s.stats.PushesReceived,
		SeenAcks:          s.stats.SeenAcks,
		Disconnects:       s.stats.Disconnects,
		Reconnects:        s.stats.Reconnects,
		AverageLatency:    s.stats.AverageLatency,
		ErrorCount:        int(s.stats.FailedRequests),
		RequestsPerSecond: rate,
	}
}
