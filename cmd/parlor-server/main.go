package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"

	"github.com/yola1107/parlor/internal/biz/engine"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/internal/data"
	"github.com/yola1107/parlor/internal/server"
	"github.com/yola1107/parlor/internal/service"
	"github.com/yola1107/parlor/library/log/zap"
)

var (
	Name     = conf.Name
	Version  = conf.Version
	flagconf string // -conf path
	flagenv  string
	id, _    = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, e.g. -conf config.yaml")
	flag.StringVar(&flagenv, "env", ".env", "optional dotenv file")
}

// application 进程入口持有的对象
type application struct {
	*kratos.App
	eng *engine.Engine
}

func newApp(logger log.Logger, hs *server.HTTPServer, eng *engine.Engine) *application {
	return &application{
		App: kratos.New(
			kratos.ID(id),
			kratos.Name(Name),
			kratos.Version(Version),
			kratos.Metadata(map[string]string{}),
			kratos.Logger(logger),
			kratos.Server(hs),
		),
		eng: eng,
	}
}

func meterProvider(t *server.Telemetry) metric.MeterProvider {
	return t.MeterProvider()
}

func healthChecks(d *data.Data) []service.Checker {
	return []service.Checker{d.Ping}
}

func main() {
	flag.Parse()

	if err := godotenv.Load(flagenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	c, bc, err := conf.LoadConfig(flagconf)
	if err != nil {
		panic(err)
	}
	defer c.Close()

	logger, err := zap.NewLogger(bc.Log)
	if err != nil {
		panic(err)
	}
	log.SetLogger(logger)
	defer logger.Close()

	app, cleanup, err := wireApp(bc, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	if err := conf.WatchConfig(c, bc, logger, app.eng); err != nil {
		panic(err)
	}

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
