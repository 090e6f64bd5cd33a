package visit

import "github.com/clinicflow/clinicflow/internal/platform/auth"

// Stage is a named point in the patient's journey through the facility.
type Stage string

const (
	StageRegistered         Stage = "registered"
	StagePayingConsultation Stage = "paying_consultation"
	StageAtTriage           Stage = "at_triage"
	StageVitalsTaken        Stage = "vitals_taken"
	StageWithDoctor         Stage = "with_doctor"
	StagePayingDiagnosis    Stage = "paying_diagnosis"
	StagePayingPharmacy     Stage = "paying_pharmacy"
	StageAtLab              Stage = "at_lab"
	StageAtImaging          Stage = "at_imaging"
	StageAtPharmacy         Stage = "at_pharmacy"
	StageAdmitted           Stage = "admitted"
	StageReadyForDischarge  Stage = "ready_for_discharge"
	StageDischarged         Stage = "discharged"
	StageCancelled          Stage = "cancelled"
)

// stageTransitions is the fixed adjacency table of the visit journey. A stage
// absent from a stage's successor set is never reachable from it, whatever
// the caller's role.
var stageTransitions = map[Stage][]Stage{
	StageRegistered:         {StagePayingConsultation, StageAtTriage, StageVitalsTaken, StageCancelled},
	StagePayingConsultation: {StageAtTriage, StageVitalsTaken, StageCancelled},
	StageAtTriage:           {StageVitalsTaken, StageWithDoctor, StageCancelled},
	StageVitalsTaken:        {StageWithDoctor, StageCancelled},
	StageWithDoctor: {
		StagePayingDiagnosis, StagePayingPharmacy, StageAtLab, StageAtImaging,
		StageAtPharmacy, StageAdmitted, StageReadyForDischarge, StageCancelled,
	},
	StagePayingDiagnosis:   {StageAtLab, StageAtImaging, StageCancelled},
	StagePayingPharmacy:    {StageAtPharmacy, StageCancelled},
	StageAtLab:             {StageWithDoctor, StageAtImaging, StagePayingPharmacy, StageReadyForDischarge, StageCancelled},
	StageAtImaging:         {StageWithDoctor, StageAtLab, StagePayingPharmacy, StageReadyForDischarge, StageCancelled},
	StageAtPharmacy:        {StageWithDoctor, StageReadyForDischarge, StageCancelled},
	StageAdmitted:          {StageReadyForDischarge, StageCancelled},
	StageReadyForDischarge: {StageDischarged, StageCancelled},
	StageDischarged:        {},
	StageCancelled:         {},
}

// stageAuthorization maps a visit's *current* stage to the roles allowed to
// move it onward. super_admin bypasses the table entirely.
var stageAuthorization = map[Stage][]string{
	StageRegistered:         {auth.RoleReceptionist, auth.RoleCashier, auth.RoleNurse, auth.RoleAdmin},
	StagePayingConsultation: {auth.RoleCashier, auth.RoleReceptionist, auth.RoleAdmin},
	StageAtTriage:           {auth.RoleNurse, auth.RoleAdmin},
	StageVitalsTaken:        {auth.RoleNurse, auth.RoleDoctor, auth.RoleAdmin},
	StageWithDoctor:         {auth.RoleDoctor, auth.RoleAdmin},
	StagePayingDiagnosis:    {auth.RoleCashier, auth.RoleAdmin},
	StagePayingPharmacy:     {auth.RoleCashier, auth.RoleAdmin},
	StageAtLab:              {auth.RoleLabTechnician, auth.RoleAdmin},
	StageAtImaging:          {auth.RoleRadiologist, auth.RoleAdmin},
	StageAtPharmacy:         {auth.RolePharmacist, auth.RoleAdmin},
	StageAdmitted:           {auth.RoleDoctor, auth.RoleNurse, auth.RoleAdmin},
	StageReadyForDischarge:  {auth.RoleDoctor, auth.RoleNurse, auth.RoleReceptionist, auth.RoleAdmin},
}

// cancelRoles may cancel a visit from any non-terminal stage.
var cancelRoles = []string{auth.RoleReceptionist, auth.RoleAdmin}

// ValidStage reports whether s is a known stage name.
func ValidStage(s Stage) bool {
	_, ok := stageTransitions[s]
	return ok
}

// Terminal reports whether s permits no further transitions.
func (s Stage) Terminal() bool {
	return s == StageDischarged || s == StageCancelled
}

func canTransition(from, to Stage) bool {
	for _, next := range stageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func roleMayAdvance(role string, from Stage) bool {
	if role == auth.RoleSuperAdmin {
		return true
	}
	for _, r := range stageAuthorization[from] {
		if r == role {
			return true
		}
	}
	return false
}

func roleMayCancel(role string) bool {
	if role == auth.RoleSuperAdmin {
		return true
	}
	for _, r := range cancelRoles {
		if r == role {
			return true
		}
	}
	return false
}
