package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"course-qa/backend/internal/inference"
	"course-qa/backend/internal/paraphrase"
	"course-qa/backend/internal/pipeline"
	"course-qa/backend/internal/retrieval"
	"course-qa/backend/internal/safety"
	"course-qa/backend/internal/store"
)

// Config defines server dependencies.
type Config struct {
	DBPath         string
	SilentDB       bool
	AllowedOrigins []string

	SafetyConfig     safety.Config
	ParaphraseConfig paraphrase.Config
	RetrievalConfig  retrieval.Config
	InferenceConfig  inference.Config
}

// Server wires HTTP handlers with the pipeline controller and the
// transaction sink.
type Server struct {
	db             *store.Database
	controller     *pipeline.Controller
	notifier       *TransactionNotifier
	allowedOrigins []string
	endpoints      map[string]string
}

// NewServer constructs the API server and its downstream clients.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	guard, err := safety.NewClient(cfg.SafetyConfig)
	if err != nil {
		return nil, fmt.Errorf("safety client: %w", err)
	}
	lookup, err := paraphrase.NewClient(cfg.ParaphraseConfig)
	if err != nil {
		return nil, fmt.Errorf("paraphrase client: %w", err)
	}
	retriever, err := retrieval.NewClient(cfg.RetrievalConfig)
	if err != nil {
		return nil, fmt.Errorf("retrieval client: %w", err)
	}
	invoker, err := inference.NewClient(cfg.InferenceConfig)
	if err != nil {
		return nil, fmt.Errorf("inference client: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"safety":     cfg.SafetyConfig.BaseURL,
		"paraphrase": cfg.ParaphraseConfig.BaseURL,
		"retrieval":  cfg.RetrievalConfig.BaseURL,
		"inference":  cfg.InferenceConfig.BaseURL,
	}).Info("downstream services configured")

	return &Server{
		db:             db,
		controller:     pipeline.NewController(guard, lookup, retriever, invoker),
		notifier:       NewTransactionNotifier(),
		allowedOrigins: cfg.AllowedOrigins,
		endpoints: map[string]string{
			"safety":     cfg.SafetyConfig.BaseURL,
			"paraphrase": cfg.ParaphraseConfig.BaseURL,
			"retrieval":  cfg.RetrievalConfig.BaseURL,
			"inference":  cfg.InferenceConfig.BaseURL,
		},
	}, nil
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.POST("/infer", s.handleInfer)

	api := r.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		api.GET("/config", s.handleConfig)
		api.GET("/transactions", s.handleListTransactions)
		api.GET("/transactions/:id", s.handleGetTransaction)
		api.GET("/transactions/stream", s.handleTransactionStream)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	stored, err := s.db.CountTransactions()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"services":            s.endpoints,
		"stored_transactions": stored,
	})
}

func (s *Server) handleListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 25
	}
	offset := page * pageSize

	rows, total, err := s.db.ListTransactions(offset, pageSize)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, TransactionFromModel(row, false))
	}
	c.JSON(http.StatusOK, TransactionsResponse{Items: dtos, Total: total})
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	transactionID := strings.TrimSpace(c.Param("id"))
	if transactionID == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("transaction id required"))
		return
	}

	record, err := s.db.GetTransaction(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("transaction %s not found", transactionID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, TransactionFromModel(*record, true))
}

func (s *Server) handleTransactionStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("transaction websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("transaction websocket closed")
			} else {
				logrus.WithError(err).Warn("transaction websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
