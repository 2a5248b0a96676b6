package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"dashboard-api/internal/domain"

	"github.com/sirupsen/logrus"
)

// StructuredLogger implementa a interface domain.Logger
type StructuredLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// contextKey define chaves para contexto
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	IPKey        contextKey = "ip"
	UserKey      contextKey = "user_id"
	UserAgentKey contextKey = "user_agent"
)

// NewLogger cria uma nova instância do logger estruturado
func NewLogger(level, format string) domain.Logger {
	return NewLoggerWithOutput(level, format, os.Stdout)
}

// NewLoggerWithOutput cria o logger escrevendo no destino informado
func NewLoggerWithOutput(level, format string, out io.Writer) domain.Logger {
	logger := logrus.New()

	// Configura o nível de log
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "function",
			},
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	logger.SetOutput(out)

	return &StructuredLogger{
		logger: logger,
		fields: make(logrus.Fields),
	}
}

// Debug registra uma mensagem de debug
func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	l.logWithFields(logrus.DebugLevel, msg, fields)
}

// Info registra uma mensagem informativa
func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.logWithFields(logrus.InfoLevel, msg, fields)
}

// Warn registra uma mensagem de warning
func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.logWithFields(logrus.WarnLevel, msg, fields)
}

// Error registra uma mensagem de erro
func (l *StructuredLogger) Error(msg string, err error, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	l.logWithFields(logrus.ErrorLevel, msg, merged)
}

// WithContext cria um novo logger com contexto da requisição
func (l *StructuredLogger) WithContext(ctx context.Context) domain.Logger {
	contextFields := l.extractContextFields(ctx)

	mergedFields := make(logrus.Fields)
	for k, v := range l.fields {
		mergedFields[k] = v
	}
	for k, v := range contextFields {
		mergedFields[k] = v
	}

	return &StructuredLogger{
		logger: l.logger,
		fields: mergedFields,
	}
}

// WithFields cria um novo logger com campos específicos
func (l *StructuredLogger) WithFields(fields map[string]interface{}) domain.Logger {
	newFields := make(logrus.Fields)
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &StructuredLogger{
		logger: l.logger,
		fields: newFields,
	}
}

// WithComponent marca o logger com o componente que o utiliza
func WithComponent(l domain.Logger, component string) domain.Logger {
	if sl, ok := l.(*StructuredLogger); ok {
		return sl.WithFields(map[string]interface{}{"component": component})
	}
	return l
}

// logWithFields registra uma mensagem com campos específicos
func (l *StructuredLogger) logWithFields(level logrus.Level, msg string, fields map[string]interface{}) {
	allFields := make(logrus.Fields)

	for k, v := range l.fields {
		allFields[k] = v
	}
	for k, v := range fields {
		allFields[k] = v
	}

	l.addServiceFields(allFields)

	l.logger.WithFields(allFields).Log(level, msg)
}

// extractContextFields extrai campos relevantes do contexto
func (l *StructuredLogger) extractContextFields(ctx context.Context) logrus.Fields {
	fields := make(logrus.Fields)

	if ctx == nil {
		return fields
	}

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		fields["request_id"] = requestID
	}

	if ip := ctx.Value(IPKey); ip != nil {
		fields["ip"] = ip
	}

	if userID, ok := ctx.Value(UserKey).(string); ok && userID != "" {
		fields["user_id"] = userID
	}

	if userAgent := ctx.Value(UserAgentKey); userAgent != nil {
		fields["user_agent"] = userAgent
	}

	return fields
}

// addServiceFields adiciona campos fixos do serviço; component só quando ausente
func (l *StructuredLogger) addServiceFields(fields logrus.Fields) {
	if _, ok := fields["component"]; !ok {
		fields["component"] = "dashboard_api"
	}

	if version := os.Getenv("APP_VERSION"); version != "" {
		fields["version"] = version
	}
}

// LogGuardDecision registra a decisão do guard para revisão operacional.
// Nunca recebe credenciais: a chave é mascarada.
func (l *StructuredLogger) LogGuardDecision(endpoint string, kind domain.ErrorKind, scope domain.Scope, key string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		merged[k] = v
	}
	merged["endpoint"] = endpoint
	if scope != "" {
		merged["scope"] = scope
	}
	if key != "" {
		merged["key"] = MaskKey(key)
	}

	if kind == "" {
		l.Debug("Request admitted by guard", merged)
		return
	}

	merged["kind"] = kind
	l.Warn("Request rejected by guard", merged)
}

// LogConfigEvent registra eventos de configuração
func (l *StructuredLogger) LogConfigEvent(eventType string, details map[string]interface{}) {
	merged := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	merged["event_type"] = eventType

	l.Info("Configuration event", merged)
}

// LogStorageEvent registra eventos do storage
func (l *StructuredLogger) LogStorageEvent(operation string, key string, success bool, latency float64, err error) {
	fields := map[string]interface{}{
		"operation":  operation,
		"key":        MaskKey(key),
		"success":    success,
		"latency_ms": latency,
	}

	if err != nil {
		l.Error("Storage operation failed", err, fields)
		return
	}
	l.Debug("Storage operation completed", fields)
}

// MaskKey mascara identificadores sensíveis para logs
func MaskKey(key string) string {
	if key == "" {
		return ""
	}

	if len(key) <= 8 {
		return key + "***"
	}

	return key[:8] + "***"
}

// ContextWithRequestInfo adiciona informações da requisição ao contexto
func ContextWithRequestInfo(ctx context.Context, requestID, ip, userID, userAgent string) context.Context {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	ctx = context.WithValue(ctx, IPKey, ip)
	if userID != "" {
		ctx = context.WithValue(ctx, UserKey, userID)
	}
	ctx = context.WithValue(ctx, UserAgentKey, userAgent)
	return ctx
}

// GetRequestID extrai o request ID do contexto
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
