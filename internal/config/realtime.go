package config

import "time"

// RealtimeConfig bounds the resources a single chat websocket may hold.
type RealtimeConfig struct {
    SendQueueSize      int           // per-connection outbound buffer (frames)
    WriteTimeout       time.Duration // per-frame write deadline
    ReadIdleTimeout    time.Duration // close after this long without inbound frames
    HeartbeatInterval  time.Duration
    HeartbeatTimeout   time.Duration
    RevalidateInterval time.Duration // how often the handshake token is rechecked
    MessagesPerSecond  float64
    MessageBurst       int
    MaxFrameBytes      int64
    MaxMessageChars    int
}

func LoadRealtimeConfig() RealtimeConfig {
    return RealtimeConfig{
        SendQueueSize:      envInt("WS_SEND_QUEUE", 64),
        WriteTimeout:       envDur("WS_WRITE_TIMEOUT", 5*time.Second),
        ReadIdleTimeout:    envDur("WS_READ_IDLE_TIMEOUT", 2*time.Minute),
        HeartbeatInterval:  envDur("WS_HEARTBEAT_INTERVAL", 25*time.Second),
        HeartbeatTimeout:   envDur("WS_HEARTBEAT_TIMEOUT", 5*time.Second),
        RevalidateInterval: envDur("WS_REVALIDATE_INTERVAL", 30*time.Second),
        MessagesPerSecond:  float64(envInt("WS_MESSAGES_PER_SECOND", 5)),
        MessageBurst:       envInt("WS_MESSAGE_BURST", 20),
        MaxFrameBytes:      int64(envInt("WS_MAX_FRAME_BYTES", 64<<10)),
        MaxMessageChars:    envInt("WS_MAX_MESSAGE_CHARS", 4000),
    }.WithDefaults()
}

// WithDefaults replaces zero or negative values with the defaults above so
// tests can build a partial config.
func (c RealtimeConfig) WithDefaults() RealtimeConfig {
    if c.SendQueueSize < 8 { c.SendQueueSize = 64 }
    if c.WriteTimeout <= 0 { c.WriteTimeout = 5 * time.Second }
    if c.ReadIdleTimeout <= 0 { c.ReadIdleTimeout = 2 * time.Minute }
    if c.HeartbeatInterval <= 0 { c.HeartbeatInterval = 25 * time.Second }
    if c.HeartbeatTimeout <= 0 { c.HeartbeatTimeout = 5 * time.Second }
    if c.RevalidateInterval <= 0 { c.RevalidateInterval = 30 * time.Second }
    if c.MessagesPerSecond <= 0 { c.MessagesPerSecond = 5 }
    if c.MessageBurst <= 0 { c.MessageBurst = 20 }
    if c.MaxFrameBytes <= 0 { c.MaxFrameBytes = 64 << 10 }
    if c.MaxMessageChars <= 0 { c.MaxMessageChars = 4000 }
    return c
}
