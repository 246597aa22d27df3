package funnel

import "hermannm.dev/enumnames"

// Stage is one ordered step a loan journey may reach, from first signup to the first
// repayment collected.
type Stage uint8

const (
	StageSignedUp Stage = iota + 1
	StageKYC
	StageCreditCheck
	StagePlanCreation
	StageInitialCollection
)

var stageNames = enumnames.NewMap(map[Stage]string{
	StageSignedUp:          "Signed-up",
	StageKYC:               "KYC",
	StageCreditCheck:       "Credit check",
	StagePlanCreation:      "Plan creation",
	StageInitialCollection: "Initial collection",
})

// Values of the stage column in the warehouse's funnel events table.
var stageEventValues = map[Stage]string{
	StageSignedUp:          "signed_up",
	StageKYC:               "kyc",
	StageCreditCheck:       "credit_check",
	StagePlanCreation:      "plan_creation",
	StageInitialCollection: "initial_collection",
}

// OrderedStages returns every funnel stage in journey order.
func OrderedStages() []Stage {
	return []Stage{
		StageSignedUp,
		StageKYC,
		StageCreditCheck,
		StagePlanCreation,
		StageInitialCollection,
	}
}

func (stage Stage) IsValid() bool {
	return stageNames.ContainsEnumValue(stage)
}

func (stage Stage) String() string {
	return stageNames.GetNameOrFallback(stage, "[INVALID STAGE]")
}

func (stage Stage) MarshalJSON() ([]byte, error) {
	return stageNames.MarshalToNameJSON(stage)
}

func (stage *Stage) UnmarshalJSON(bytes []byte) error {
	return stageNames.UnmarshalFromNameJSON(bytes, stage)
}
