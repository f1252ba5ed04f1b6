package eventbus

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arkaos/arka/internal/assembly"
)

// Namespace is the assembly namespace holding the bus configuration.
const Namespace = "ARKORE16-EVENT-BUS"

// Subscriber transports.
const (
	UsingLocal   = "local"
	UsingWebhook = "webhook"
	UsingStdout  = "stdout"
)

const (
	DefaultLocalBaseDir   = "scripts/"
	DefaultLocalTimeout   = 10 * time.Second
	DefaultWebhookTimeout = 10 * time.Second
	DefaultWebhookRetries = 2
)

// Subscription routes a canonical topic to a transport.
type Subscription struct {
	Name    string
	On      []string
	Using   string
	Run     string
	Args    []string
	Timeout time.Duration
}

// Matches reports whether the subscription listens to topic.
func (s Subscription) Matches(topic string) bool {
	for _, on := range s.On {
		if on == topic || on == "*" {
			return true
		}
	}
	return false
}

// Config is the resolved bus configuration.
type Config struct {
	AliasTopics    map[string]string
	StdoutEnabled  bool
	LocalBaseDir   string
	LocalTimeout   time.Duration
	WebhookTimeout time.Duration
	WebhookRetries int
	Parallel       int
	Subscriptions  []Subscription
}

// DefaultConfig is what an assembly without the bus namespace gets: stdout
// only, no subscribers.
func DefaultConfig() Config {
	return Config{
		AliasTopics:    map[string]string{},
		StdoutEnabled:  true,
		LocalBaseDir:   DefaultLocalBaseDir,
		LocalTimeout:   DefaultLocalTimeout,
		WebhookTimeout: DefaultWebhookTimeout,
		WebhookRetries: DefaultWebhookRetries,
		Parallel:       1,
	}
}

// ConfigFromAssembly reads the bus namespace. Shape errors in present keys
// are configuration errors; absent keys take defaults.
func ConfigFromAssembly(asm *assembly.Assembly, defaults Config) (Config, error) {
	cfg := defaults
	if cfg.AliasTopics == nil {
		cfg.AliasTopics = map[string]string{}
	}
	ns, ok := asm.Namespace(Namespace)
	if !ok {
		return cfg, nil
	}

	if aliases, ok := assembly.Path(ns, "alias_topics"); ok {
		for _, k := range aliases.Keys() {
			v, _ := aliases.Get(k)
			if s := v.Text(); s != "" {
				cfg.AliasTopics[k] = s
			}
		}
	}
	if v, ok := assembly.Path(ns, "dispatch.stdout.enabled"); ok {
		b, isBool := v.AsBool()
		if !isBool {
			return cfg, shapeError("dispatch.stdout.enabled", "a boolean", v)
		}
		cfg.StdoutEnabled = b
	}
	if v, ok := assembly.Path(ns, "dispatch.local.base_dir"); ok && v.Text() != "" {
		cfg.LocalBaseDir = v.Text()
	}
	if v, ok := assembly.Path(ns, "dispatch.local.timeout"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return cfg, shapeError("dispatch.local.timeout", "a duration", v)
		}
		cfg.LocalTimeout = d
	}
	if v, ok := assembly.Path(ns, "dispatch.webhook.timeout"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return cfg, shapeError("dispatch.webhook.timeout", "a duration", v)
		}
		cfg.WebhookTimeout = d
	}
	if v, ok := assembly.Path(ns, "dispatch.webhook.retries"); ok {
		n, err := strconv.Atoi(v.Text())
		if err != nil || n < 0 {
			return cfg, shapeError("dispatch.webhook.retries", "a non-negative integer", v)
		}
		cfg.WebhookRetries = n
	}
	if v, ok := assembly.Path(ns, "dispatch.parallel"); ok {
		n, err := strconv.Atoi(v.Text())
		if err != nil || n < 1 {
			return cfg, shapeError("dispatch.parallel", "a positive integer", v)
		}
		cfg.Parallel = n
	}

	if subs, ok := assembly.Path(ns, "subscriptions"); ok {
		if subs.Kind() != assembly.KindSequence {
			return cfg, shapeError("subscriptions", "a list", subs)
		}
		for i, item := range subs.Items() {
			sub, err := subscriptionFrom(i, item)
			if err != nil {
				return cfg, err
			}
			cfg.Subscriptions = append(cfg.Subscriptions, sub)
		}
	}
	return cfg, nil
}

func subscriptionFrom(i int, v assembly.Value) (Subscription, error) {
	field := fmt.Sprintf("subscriptions.%d", i)
	if !v.IsMapping() {
		return Subscription{}, shapeError(field, "a mapping", v)
	}
	sub := Subscription{Name: fmt.Sprintf("sub-%d", i)}
	if name, ok := v.Get("name"); ok && name.Text() != "" {
		sub.Name = name.Text()
	}
	if on, ok := v.Get("on"); ok {
		sub.On = on.Strings()
	}
	if using, ok := v.Get("using"); ok {
		sub.Using = strings.ToLower(using.Text())
	}
	if run, ok := v.Get("run"); ok {
		sub.Run = run.Text()
	}
	if args, ok := v.Get("args"); ok {
		sub.Args = args.Strings()
	}
	if t, ok := v.Get("timeout"); ok && !t.IsNull() {
		d, err := parseDuration(t)
		if err != nil {
			return Subscription{}, shapeError(field+".timeout", "a duration", t)
		}
		sub.Timeout = d
	}
	return sub, nil
}

// parseDuration accepts a Go duration string ("750ms", "5s") or a bare
// number of seconds.
func parseDuration(v assembly.Value) (time.Duration, error) {
	if f, ok := v.Float(); ok {
		return time.Duration(f * float64(time.Second)), nil
	}
	s, ok := v.Str()
	if !ok {
		return 0, fmt.Errorf("not a duration")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func shapeError(field, want string, got assembly.Value) error {
	return &assembly.ConfigError{
		Reason:  assembly.ReasonWrongShape,
		Ref:     Namespace + ":" + field,
		Segment: field,
		Err:     fmt.Errorf("%s:%s must be %s, got %s", Namespace, field, want, got.Kind()),
	}
}
