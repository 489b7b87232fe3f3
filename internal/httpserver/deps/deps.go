package deps

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/tabreaper/tabreaper/internal/host"
	"github.com/tabreaper/tabreaper/internal/logger"
	"github.com/tabreaper/tabreaper/internal/policy"
	"github.com/tabreaper/tabreaper/internal/rules"
	"github.com/tabreaper/tabreaper/internal/sweep"
	"github.com/tabreaper/tabreaper/internal/tracker"
)

type Deps struct {
	Logger      logger.Logger
	StartTime   time.Time
	Version     string
	Commit      string
	BuildDate   string
	GoVersion   string
	TimeNow     func() time.Time    // for testing, defaults to time.Now
	RedisClient *redis.Client       // readiness checks ping through this
	Host        host.Host           // live tab enumeration for stats
	Policy      *policy.Manager     // effective eviction policy
	Rules       *rules.Resolver     // per-domain rule set
	Tracker     *tracker.Tracker    // activity clock
	Sweeper     *sweep.Sweeper      // manual sweep entry point
	Validate    *validator.Validate // request body validation
}
