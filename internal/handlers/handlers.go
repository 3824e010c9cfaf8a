package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"quickchat/internal/api"
	"quickchat/internal/engine"
	"quickchat/internal/middleware"
	"quickchat/internal/presence"
	"quickchat/internal/utils"
	"quickchat/internal/websocket"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Options carries everything NewServer wires together.
type Options struct {
	Engine         *engine.Engine
	Tokens         *middleware.TokenManager
	Metrics        *utils.MetricsCollector
	Hub            *websocket.Hub
	Registry       *presence.Registry
	AllowedOrigins []string
	MetricsEnabled bool
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	SendBuffer     int
	Log            *zap.SugaredLogger
}

// Server holds all server dependencies
type Server struct {
	Engine         *engine.Engine
	Tokens         *middleware.TokenManager
	Metrics        *utils.MetricsCollector
	Hub            *websocket.Hub
	Registry       *presence.Registry
	AllowedOrigins []string
	MetricsEnabled bool
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	SendBuffer     int

	validate *validator.Validate
	root     *zap.SugaredLogger
	log      *zap.SugaredLogger
}

// NewServer creates a new Server instance with the given components
func NewServer(opts Options) *Server {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 8 << 20
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second // Default timeout for actor requests
	}

	validate := validator.New()
	// Report fields by their JSON names.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		Engine:         opts.Engine,
		Tokens:         opts.Tokens,
		Metrics:        opts.Metrics,
		Hub:            opts.Hub,
		Registry:       opts.Registry,
		AllowedOrigins: opts.AllowedOrigins,
		MetricsEnabled: opts.MetricsEnabled,
		MaxBodyBytes:   maxBody,
		RequestTimeout: timeout,
		SendBuffer:     opts.SendBuffer,
		validate:       validate,
		root:           opts.Log,
		log:            opts.Log.With("component", "handlers"),
	}
}

// Routes builds the router with logging and CORS applied.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(s.root, s.Metrics))

	r.HandleFunc("/api/status", s.HandleStatus()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HandleHealth()).Methods(http.MethodGet)
	if s.MetricsEnabled && s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/ws", s.HandleWebSocket()).Methods(http.MethodGet)

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/signup", s.HandleSignup()).Methods(http.MethodPost)
	auth.HandleFunc("/login", s.HandleLogin()).Methods(http.MethodPost)
	auth.Handle("/check", s.protect(s.HandleCheckAuth())).Methods(http.MethodGet)
	auth.Handle("/update-profile", s.protect(s.HandleUpdateProfile())).Methods(http.MethodPut)

	messages := r.PathPrefix("/api/message").Subrouter()
	messages.Handle("/users", s.protect(s.HandleSidebarUsers())).Methods(http.MethodGet)
	messages.Handle("/mark/{id}", s.protect(s.HandleMarkSeen())).Methods(http.MethodPut)
	messages.Handle("/send/{id}", s.protect(s.HandleSendMessage())).Methods(http.MethodPost)
	messages.Handle("/{id}", s.protect(s.HandleOpenConversation())).Methods(http.MethodGet)
	// Web clients mark pushed messages through the plural path.
	r.Handle("/api/messages/mark/{id}", s.protect(s.HandleMarkSeen())).Methods(http.MethodPut)

	r.Handle("/api/users/online", s.protect(s.HandleOnlineUsers())).Methods(http.MethodGet)

	return middleware.CORSMiddleware(middleware.DefaultCORSConfig(s.AllowedOrigins))(r)
}

func (s *Server) protect(h http.HandlerFunc) http.Handler {
	return s.Tokens.Authenticate(h)
}

// sessionDeps are the shared collaborators for websocket sessions.
func (s *Server) sessionDeps() websocket.Deps {
	return websocket.Deps{
		Hub:            s.Hub,
		Registry:       s.Registry,
		Handler:        s.Engine,
		SendBuffer:     s.SendBuffer,
		RequestTimeout: s.RequestTimeout,
		Log:            s.root,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps err to a status code and a {success:false} body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := utils.AsAppError(err)
	status := utils.AppErrorToHTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		s.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "code", appErr.Code, "error", err)
	}
	writeJSON(w, status, api.Response{
		Success: false,
		Message: appErr.Message,
		Code:    appErr.Code,
	})
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return utils.NewValidationError("request body too large")
		}
		return utils.NewValidationError("invalid request body")
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) *utils.AppError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return utils.NewValidationError("invalid request")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return utils.NewValidationError(fe.Field() + " is required")
	case "email":
		return utils.NewValidationError(fe.Field() + " must be a valid email")
	default:
		return utils.NewValidationError(fe.Field() + " is invalid")
	}
}

func currentUserID(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, utils.NewUnauthorizedError("no user in request")
	}
	return userID, nil
}

func pathID(r *http.Request, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, utils.NewValidationError("invalid " + what + " id")
	}
	return id, nil
}
