package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/strandapp/strand/changefeed"
	"github.com/strandapp/strand/chat"
	"github.com/strandapp/strand/engine"
	"github.com/strandapp/strand/entity"
	"github.com/strandapp/strand/media"
	"github.com/strandapp/strand/server"
	"github.com/strandapp/strand/server/middlewares"
	"github.com/strandapp/strand/store/postgres"
	"github.com/strandapp/strand/story"
	"github.com/strandapp/strand/utils"
	"github.com/strandapp/strand/utils/dotenv"
	. "github.com/strandapp/strand/utils/flag"
	. "github.com/strandapp/strand/utils/log"
)

func init() {
	Parse()
	// Rebuild the logger so its service field reflects the parsed flags.
	InitLogger()

	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	if !*IsDevelopment {
		middlewares.Setup()
	}
	utils.StartTracer()
	utils.StartProfiler()

	Log.Info("sync server initialized")
}

func cleanup() {
	utils.CloseProfiler()
	utils.CloseTracer()
	Log.Info("sync server shutdown")
}

func newDogStatsdClient() *statsd.Client {
	client, err := statsd.New("127.0.0.1:8125")
	if err != nil {
		panic(err)
	}
	return client
}

func main() {
	defer cleanup()

	db, err := utils.GetDBConnection()
	if err != nil {
		Log.Fatalf("cannot connect to database: %v", err)
	}
	utils.DatabaseSetupAndMigration(db)

	bus := changefeed.NewBus()
	defer bus.Close()

	st := postgres.New(db, bus)

	var seen story.SeenCache
	if redisStore, err := utils.GetRedisStatusStore(); err != nil {
		// Redis only accelerates view dedup, the store stays correct
		// without it.
		Log.Errorf("redis unavailable, story views fall back to the database: %v", err)
	} else {
		seen = redisStore
	}

	var files media.FileStore
	if dotenv.IsProdEnv() {
		files, err = media.NewS3FileStore(media.ProdS3Bucket)
	} else {
		files, err = media.NewS3FileStore(media.DevS3Bucket)
	}
	if err != nil {
		Log.Fatalf("cannot initialize media store: %v", err)
	}

	chats := chat.NewService(st, st)
	stories := story.NewService(st, st, files, seen)
	entities := entity.NewService(entity.NewCache(), st)

	channels := server.NewEventChannels()
	handlers := server.NewHandlers(st, chats, stories, entities, files)
	router := server.NewRouter(server.RouterConfig{
		ServiceName: *ServiceName,
		BypassAuth:  *IsDevelopment,
	}, handlers, channels)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.NewEngine(ctx,
		server.NewFanout("fanout", bus, channels, st),
		engine.NewReporter("reporter", newDogStatsdClient(), bus),
	)
	engineDone := make(chan struct{})
	go func() {
		eng.Run()
		close(engineDone)
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		eng.Shutdown()
	}()

	Log.Info("sync server starts up")
	if err := router.Run(":8080"); err != nil {
		Log.Errorf("server stopped: %v", err)
	}
	<-engineDone
}
