package task

import (
	"time"

	"github.com/nidhogg/crewkit/internal/worker"
)

// DefaultTemplates returns the built-in blueprint set for the club
// management domain. The service bootstrap registers these; deployments
// with their own blueprints pass their own list to NewRegistry.
func DefaultTemplates() []*Template {
	return []*Template{
		{
			Name:        "add_player",
			Description: "Register a new player on the club roster",
			WorkerKind:  worker.KindPlayerManager,
			Parameters: []ParameterSpec{
				{Name: "name", Required: true, Type: "string"},
				{Name: "phone", Required: true, Type: "string", Pattern: `^[0-9+\-() ]{7,20}$`},
				{Name: "position", Required: false, Type: "string"},
			},
			Priority:          5,
			EstimatedDuration: 10 * time.Second,
			Tags:              []string{"players"},
		},
		{
			Name:        "update_roster",
			Description: "Apply a change to the club roster",
			WorkerKind:  worker.KindPlayerManager,
			Parameters: []ParameterSpec{
				{Name: "player", Required: true, Type: "string"},
				{Name: "change", Required: true, Type: "string"},
			},
			Priority:          4,
			EstimatedDuration: 10 * time.Second,
			Tags:              []string{"players"},
		},
		{
			Name:        "record_payment",
			Description: "Record a membership or match fee payment",
			WorkerKind:  worker.KindPaymentManager,
			Parameters: []ParameterSpec{
				{Name: "player", Required: true, Type: "string"},
				{Name: "amount", Required: true, Type: "string", Pattern: `^[0-9]+(\.[0-9]{1,2})?$`},
				{Name: "reason", Required: false, Type: "string", Default: "membership"},
			},
			Priority:          5,
			EstimatedDuration: 8 * time.Second,
			Tags:              []string{"payments"},
		},
		{
			Name:        "schedule_match",
			Description: "Schedule a match against an opponent",
			WorkerKind:  worker.KindMatchCoordinator,
			Parameters: []ParameterSpec{
				{Name: "opponent", Required: true, Type: "string"},
				{Name: "date", Required: true, Type: "string"},
				{Name: "venue", Required: false, Type: "string", Default: "home"},
			},
			Priority:          6,
			EstimatedDuration: 15 * time.Second,
			Tags:              []string{"matches"},
		},
		{
			Name:        "notify_team",
			Description: "Send an announcement to the whole team",
			WorkerKind:  worker.KindCommsOfficer,
			Parameters: []ParameterSpec{
				{Name: "message", Required: true, Type: "string"},
				{Name: "channel", Required: false, Type: "string",
					AllowedValues: []string{"email", "sms", "app"}, Default: "app"},
			},
			Priority:          3,
			EstimatedDuration: 5 * time.Second,
			Tags:              []string{"comms"},
		},
		{
			Name:        "compile_report",
			Description: "Compile a statistics or attendance report",
			WorkerKind:  worker.KindAnalyst,
			Parameters: []ParameterSpec{
				{Name: "subject", Required: true, Type: "string"},
				{Name: "period", Required: false, Type: "string", Default: "season"},
			},
			Priority:          2,
			EstimatedDuration: 20 * time.Second,
			Tags:              []string{"analytics"},
		},
		{
			Name:        "general_request",
			Description: "Handle a request that fits no specific blueprint",
			WorkerKind:  worker.KindGeneralist,
			Parameters: []ParameterSpec{
				{Name: "request", Required: true, Type: "string"},
			},
			Priority:          1,
			EstimatedDuration: 15 * time.Second,
			Tags:              []string{"fallback"},
		},
	}
}
