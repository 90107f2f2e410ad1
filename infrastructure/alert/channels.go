package alert

import (
	"fmt"
	"log"
	"os"

	"candle-gateway-go/infrastructure/logger"

	"go.uber.org/zap"
)

// LogChannel 标准库日志告警通道
type LogChannel struct {
	logger *log.Logger
	name   string
}

// NewLogChannel 创建日志告警通道，output 为 nil 时写 stdout。
func NewLogChannel(name string, output *os.File) *LogChannel {
	if output == nil {
		output = os.Stdout
	}
	return &LogChannel{
		logger: log.New(output, "[ALERT] ", log.LstdFlags),
		name:   name,
	}
}

func (c *LogChannel) Send(a Alert) error {
	msg := fmt.Sprintf("[%s] %s", a.Level, a.Message)
	for k, v := range a.Fields {
		msg += fmt.Sprintf(" %s=%v", k, v)
	}
	c.logger.Println(msg)
	return nil
}

func (c *LogChannel) Name() string {
	return c.name
}

// ZapChannel 把告警写进结构化日志，供日志采集侧做告警规则。
type ZapChannel struct {
	log  *logger.Logger
	name string
}

func NewZapChannel(name string, log *logger.Logger) *ZapChannel {
	return &ZapChannel{log: log, name: name}
}

func (c *ZapChannel) Send(a Alert) error {
	fields := []zap.Field{
		zap.String("level", string(a.Level)),
		zap.Time("alertTs", a.Timestamp),
	}
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch a.Level {
	case LevelError, LevelCritical:
		c.log.Logger.Error("alert: "+a.Message, fields...)
	default:
		c.log.Logger.Warn("alert: "+a.Message, fields...)
	}
	return nil
}

func (c *ZapChannel) Name() string {
	return c.name
}

// MockChannel 模拟告警通道，用于测试。
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
}

func NewMockChannel(name string) *MockChannel {
	return &MockChannel{
		name:   name,
		alerts: make([]Alert, 0),
	}
}

func (c *MockChannel) Send(a Alert) error {
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *MockChannel) Name() string {
	return c.name
}

func (c *MockChannel) Alerts() []Alert {
	return c.alerts
}

func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.shouldErr = shouldErr
}

func (c *MockChannel) Count() int {
	return len(c.alerts)
}
