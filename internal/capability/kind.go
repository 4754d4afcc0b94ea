// Package capability defines the closed set of worker skills and the
// static matrix that records how proficient each worker is at them.
package capability

// Kind names a single skill a worker may possess.
type Kind string

const (
	KindPlayerManagement      Kind = "player_management"
	KindPlayerOnboarding      Kind = "player_onboarding"
	KindRosterUpdates         Kind = "roster_updates"
	KindPaymentProcessing     Kind = "payment_processing"
	KindInvoiceGeneration     Kind = "invoice_generation"
	KindRefundHandling        Kind = "refund_handling"
	KindDuesTracking          Kind = "dues_tracking"
	KindMatchScheduling       Kind = "match_scheduling"
	KindMatchReporting        Kind = "match_reporting"
	KindVenueBooking          Kind = "venue_booking"
	KindRefereeAssignment     Kind = "referee_assignment"
	KindTournamentPlanning    Kind = "tournament_planning"
	KindTrainingPlanning      Kind = "training_planning"
	KindAttendanceTracking    Kind = "attendance_tracking"
	KindTeamCommunication     Kind = "team_communication"
	KindAnnouncementDrafting  Kind = "announcement_drafting"
	KindReminderDispatch      Kind = "reminder_dispatch"
	KindConflictResolution    Kind = "conflict_resolution"
	KindDataAnalysis          Kind = "data_analysis"
	KindPerformanceReporting  Kind = "performance_reporting"
	KindStatisticsCompilation Kind = "statistics_compilation"
	KindBudgetPlanning        Kind = "budget_planning"
	KindSponsorshipOutreach   Kind = "sponsorship_outreach"
	KindEquipmentInventory    Kind = "equipment_inventory"
	KindTravelCoordination    Kind = "travel_coordination"
	KindDocumentManagement    Kind = "document_management"
	KindRuleInterpretation    Kind = "rule_interpretation"
	KindMemberSupport         Kind = "member_support"
	KindGeneralAssistance     Kind = "general_assistance"
	KindTaskCoordination      Kind = "task_coordination"
)

// Kinds lists every known capability kind.
var Kinds = []Kind{
	KindPlayerManagement,
	KindPlayerOnboarding,
	KindRosterUpdates,
	KindPaymentProcessing,
	KindInvoiceGeneration,
	KindRefundHandling,
	KindDuesTracking,
	KindMatchScheduling,
	KindMatchReporting,
	KindVenueBooking,
	KindRefereeAssignment,
	KindTournamentPlanning,
	KindTrainingPlanning,
	KindAttendanceTracking,
	KindTeamCommunication,
	KindAnnouncementDrafting,
	KindReminderDispatch,
	KindConflictResolution,
	KindDataAnalysis,
	KindPerformanceReporting,
	KindStatisticsCompilation,
	KindBudgetPlanning,
	KindSponsorshipOutreach,
	KindEquipmentInventory,
	KindTravelCoordination,
	KindDocumentManagement,
	KindRuleInterpretation,
	KindMemberSupport,
	KindGeneralAssistance,
	KindTaskCoordination,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind maps a raw string to a Kind, reporting whether it is known.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, k.Valid()
}
