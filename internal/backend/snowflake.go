package backend

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	sf "github.com/snowflakedb/gosnowflake"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/internal/query"
	"github.com/fluxtable/fluxtable/pkg/types"
)

// Login modes for the Snowflake backend.
const (
	LoginPassword = "password"
	LoginKeypair  = "keypair"
	LoginOAuth    = "oauth"
)

// SnowflakeConfig holds the remote warehouse connection parameters.
type SnowflakeConfig struct {
	Account        string `json:"account" yaml:"account"`
	User           string `json:"user" yaml:"user"`
	Password       string `json:"password" yaml:"password"`
	Database       string `json:"database" yaml:"database"`
	Schema         string `json:"schema" yaml:"schema"`
	Warehouse      string `json:"warehouse" yaml:"warehouse"`
	PrivateKeyPath string `json:"private_key_path" yaml:"private_key_path"`
	OAuthToken     string `json:"oauth_token" yaml:"oauth_token"`

	// Login selects the authentication mode: password, keypair, or oauth.
	Login string `json:"login" yaml:"login"`
}

// Snowflake is the remote-warehouse variant. Like the embedded engines it
// assigns ids from a sequence, and its connections are pinned per worker.
type Snowflake struct {
	cfg     SnowflakeConfig
	table   string
	workers int

	db   *sql.DB
	boot bootstrapper
}

// NewSnowflake creates a Snowflake backend. Credential problems are
// reported here when they are statically detectable (missing settings,
// unreadable key material); everything else surfaces at Connect.
func NewSnowflake(cfg SnowflakeConfig, table string, workers int) (*Snowflake, error) {
	if err := query.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if cfg.Schema == "" {
		cfg.Schema = "PUBLIC"
	}
	if cfg.Login == "" {
		cfg.Login = LoginPassword
	}
	return &Snowflake{cfg: cfg, table: table, workers: workers}, nil
}

func (s *Snowflake) Name() string { return "snowflake" }

// Open builds the DSN and prepares the shared handle. No network traffic
// happens here; authentication failures surface per worker at Connect.
func (s *Snowflake) Open(ctx context.Context) error {
	dsn, err := s.dsn()
	if err != nil {
		return err
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return apperrors.NewConnectionError(apperrors.CodeConnectFailed,
			"opening snowflake handle", err)
	}
	db.SetMaxOpenConns(connLimit(s.workers))
	db.SetMaxIdleConns(connLimit(s.workers))
	// Pinned connections must not be torn down under their workers.
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	s.db = db
	return nil
}

// dsn assembles the gosnowflake DSN for the configured login mode.
func (s *Snowflake) dsn() (string, error) {
	var missing []string
	for name, v := range map[string]string{
		"account":   s.cfg.Account,
		"user":      s.cfg.User,
		"database":  s.cfg.Database,
		"warehouse": s.cfg.Warehouse,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", apperrors.New(apperrors.CategoryConnection, apperrors.CodeAuthFailed,
			fmt.Sprintf("missing required snowflake settings: %s", strings.Join(missing, ", ")))
	}

	cfg := &sf.Config{
		Account:   s.cfg.Account,
		User:      s.cfg.User,
		Database:  s.cfg.Database,
		Schema:    s.cfg.Schema,
		Warehouse: s.cfg.Warehouse,
	}

	switch s.cfg.Login {
	case LoginPassword:
		if s.cfg.Password == "" {
			return "", apperrors.New(apperrors.CategoryConnection, apperrors.CodeAuthFailed,
				"password login requires a password")
		}
		cfg.Password = s.cfg.Password
	case LoginKeypair:
		key, err := loadPrivateKey(s.cfg.PrivateKeyPath)
		if err != nil {
			return "", err
		}
		cfg.Authenticator = sf.AuthTypeJwt
		cfg.PrivateKey = key
	case LoginOAuth:
		if s.cfg.OAuthToken == "" {
			return "", apperrors.New(apperrors.CategoryConnection, apperrors.CodeAuthFailed,
				"oauth login requires a token")
		}
		cfg.Authenticator = sf.AuthTypeOAuth
		cfg.Token = s.cfg.OAuthToken
	default:
		return "", apperrors.NewValidationError(apperrors.CodeInvalidPayload,
			fmt.Sprintf("unknown login mode %q (must be password, keypair, or oauth)", s.cfg.Login))
	}

	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", apperrors.NewConnectionError(apperrors.CodeAuthFailed,
			"building snowflake DSN", err)
	}
	return dsn, nil
}

// loadPrivateKey reads a PKCS#8 RSA private key in PEM form for keypair
// login.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return nil, apperrors.New(apperrors.CategoryConnection, apperrors.CodeAuthFailed,
			"keypair login requires a private key path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConnectionError(apperrors.CodeAuthFailed,
			fmt.Sprintf("reading private key %s", path), err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, apperrors.New(apperrors.CategoryConnection, apperrors.CodeAuthFailed,
			fmt.Sprintf("private key %s is not PEM-encoded", path))
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, apperrors.NewConnectionError(apperrors.CodeAuthFailed,
			fmt.Sprintf("parsing private key %s", path), err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryConnection, apperrors.CodeAuthFailed,
			fmt.Sprintf("private key %s is not an RSA key", path))
	}
	return key, nil
}

func (s *Snowflake) Connect(ctx context.Context) (*sql.Conn, error) {
	if s.db == nil {
		return nil, apperrors.New(apperrors.CategoryConnection, apperrors.CodeConnectFailed,
			"snowflake backend is not open")
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, apperrors.NewConnectionError(apperrors.CodeConnectFailed,
			"acquiring snowflake connection", err)
	}
	if err := s.boot.ensure(ctx, conn, s.bootstrapStmts()); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (s *Snowflake) sequence() string { return s.table + "_seq" }

func (s *Snowflake) bootstrapStmts() []string {
	return []string{
		fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s", quoteIdent(s.sequence())),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s NUMBER DEFAULT %s.NEXTVAL PRIMARY KEY)",
			quoteIdent(s.table), quoteIdent("id"), quoteIdent(s.sequence())),
	}
}

func (s *Snowflake) QuoteIdent(name string) string { return quoteIdent(name) }

func (s *Snowflake) ColumnType(k types.Kind) string {
	switch k {
	case types.KindBool:
		return "BOOLEAN"
	case types.KindInt:
		return "NUMBER"
	case types.KindFloat:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func (s *Snowflake) NextID(ctx context.Context, q Querier) (int64, bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT %s.NEXTVAL", quoteIdent(s.sequence())))
	if err != nil {
		return 0, false, apperrors.NewInternalError("advancing id sequence", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, false, apperrors.NewInternalError("id sequence returned no row", rows.Err())
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, false, apperrors.NewInternalError("scanning id sequence value", err)
	}
	return id, true, nil
}

func (s *Snowflake) PingQuery() string { return "SELECT 1" }

// CheckpointStmt is empty: there is no local database file to snapshot.
func (s *Snowflake) CheckpointStmt() string { return "" }

func (s *Snowflake) IsDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func (s *Snowflake) IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "constraint")
}

func (s *Snowflake) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
