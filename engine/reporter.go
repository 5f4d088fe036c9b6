package engine

import (
	"context"

	"github.com/strandapp/strand/changefeed"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/utils/log"
)

const changeEventCounter = "strand.changefeed.events"

// StatsdClient is the slice of the datadog statsd client the reporter uses.
type StatsdClient interface {
	Incr(name string, tags []string, rate float64) error
}

// Reporter counts change feed traffic per table and op and ships the
// counters to datadog. It observes every table so a stalled feed shows up
// as a flat line on the dashboard.
type Reporter struct {
	name   string
	statsd StatsdClient
	bus    *changefeed.Bus
	tables []string
}

func NewReporter(name string, statsd StatsdClient, bus *changefeed.Bus) *Reporter {
	return &Reporter{
		name:   name,
		statsd: statsd,
		bus:    bus,
		tables: []string{
			model.TableChatMembers,
			model.TableMessages,
			model.TableMessageReceipts,
			model.TableStories,
			model.TableStoryViews,
			model.TablePosts,
			model.TablePostLikes,
		},
	}
}

func (r *Reporter) Name() string {
	return r.name
}

func (r *Reporter) RunModule(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan model.ChangeEvent)
	for _, table := range r.tables {
		events, err := r.bus.Subscribe(ctx, table, nil)
		if err != nil {
			return err
		}
		go func() {
			for event := range events {
				select {
				case merged <- event:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-merged:
			err := r.statsd.Incr(changeEventCounter,
				[]string{"table:" + event.Table, "op:" + event.Op.String()}, 1)
			if err != nil {
				log.Log.Infoln("cannot report change event counter")
			}
		}
	}
}
