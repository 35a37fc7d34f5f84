package commands

// Default cache targets of the explorer stack.
const (
	DefaultRedisService = "redis"
	DefaultAppService   = "explorer"
	DefaultMarkerPath   = "/app/.cache/.clear"
)

// DefaultRedisKeys are the pre-processed lists the ZMQ listener maintains.
var DefaultRedisKeys = []string{
	"bch:blocks:latest",
	"bch:txs:latest",
	"bch:mempool:txids",
}

// CacheTargets names what the cache clearing operations touch inside the
// running stack.
type CacheTargets struct {
	RedisService string
	RedisKeys    []string
	AppService   string
	MarkerPath   string
}

// DefaultCacheTargets returns the explorer's cache layout.
func DefaultCacheTargets() CacheTargets {
	return CacheTargets{
		RedisService: DefaultRedisService,
		RedisKeys:    append([]string(nil), DefaultRedisKeys...),
		AppService:   DefaultAppService,
		MarkerPath:   DefaultMarkerPath,
	}
}

func (c CacheTargets) withDefaults() CacheTargets {
	d := DefaultCacheTargets()
	if c.RedisService == "" {
		c.RedisService = d.RedisService
	}
	if len(c.RedisKeys) == 0 {
		c.RedisKeys = d.RedisKeys
	}
	if c.AppService == "" {
		c.AppService = d.AppService
	}
	if c.MarkerPath == "" {
		c.MarkerPath = d.MarkerPath
	}
	return c
}
