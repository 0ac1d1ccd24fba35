// Package replay plays saved raw event logs back as agent streams, to
// re-render or re-run a workflow offline.
package replay

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/events"
	"github.com/go-go-golems/agentic-research/pkg/prompts"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Log is a raw event log as saved by the reducer.
type Log struct {
	Path    string
	Entries []json.RawMessage
}

func Load(path string) (*Log, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, errors.Wrapf(err, "%s is not a raw event log", path)
	}
	return &Log{Path: path, Entries: entries}, nil
}

// Stream returns a new stream over the entries of the log.
func (l *Log) Stream() agent.Stream {
	return &stream{entries: l.Entries}
}

type stream struct {
	entries []json.RawMessage
	pos     int

	agents []string
	final  string
	usage  *events.Usage
}

var _ agent.Stream = &stream{}

func (s *stream) Next(ctx context.Context) (events.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.entries) {
		return nil, io.EOF
	}
	ev := events.Decode(s.entries[s.pos])
	s.pos++

	switch ev_ := ev.(type) {
	case *events.EventAgentUpdated:
		s.agents = append(s.agents, ev_.NewAgent)
	case *events.EventOutputItem:
		if ev_.Phase() == events.ItemPhaseDone && ev_.Item.Type == events.ItemTypeMessage {
			s.final = ev_.Item.Text()
		}
	case *events.EventResponseCompleted:
		if s.usage == nil {
			s.usage = &events.Usage{}
		}
		s.usage.Add(ev_.Response.Usage)
	}
	return ev, nil
}

func (s *stream) FinalOutput() string {
	return s.final
}

func (s *stream) Usage() *events.Usage {
	return s.usage
}

// Handoff is reconstructed from the agent updates of the log: the first
// agent handing off to the last one.
func (s *stream) Handoff() *agent.Handoff {
	if len(s.agents) < 2 {
		return nil
	}
	from, to := s.agents[0], s.agents[len(s.agents)-1]
	if from == to {
		return nil
	}
	return &agent.Handoff{From: from, To: to}
}

// Executor serves the stream of an agent from its registered log.
type Executor struct {
	logs map[string]*Log
}

var _ agent.Executor = &Executor{}

func NewExecutor() *Executor {
	return &Executor{logs: map[string]*Log{}}
}

func (e *Executor) Add(agentName string, l *Log) {
	e.logs[agentName] = l
}

func (e *Executor) Start(ctx context.Context, req agent.Request) (agent.Stream, error) {
	if req.Agent == nil {
		return nil, errors.New("no agent given")
	}
	l, ok := e.logs[req.Agent.Name]
	if !ok {
		return nil, errors.Errorf("no recorded events for %s", req.Agent.Name)
	}
	log.Debug().Str("agent", req.Agent.Name).Str("path", l.Path).Int("events", len(l.Entries)).Msg("Replaying recorded events")
	return l.Stream(), nil
}

// recorded log files per agent, in order of preference
var agentLogs = map[string][]string{
	prompts.ResearchAgentName: {"raw_events_research.json"},
	prompts.CritiqueAgentName: {
		"raw_events_critique_after_research.json",
		"raw_events_iterative.json",
		"raw_events_critique.json",
	},
	prompts.FinalReportAgentName: {
		"raw_events_final_report.json",
		"raw_events_final_report_only.json",
	},
}

// FromResultsDir registers the raw event logs found in dir. It fails when
// dir contains none.
func FromResultsDir(dir string) (*Executor, error) {
	ret := NewExecutor()
	for name, files := range agentLogs {
		for _, f := range files {
			path := filepath.Join(dir, f)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			l, err := Load(path)
			if err != nil {
				return nil, err
			}
			ret.Add(name, l)
			break
		}
	}
	if len(ret.logs) == 0 {
		return nil, errors.Errorf("no raw event logs found in %s", dir)
	}
	return ret, nil
}
