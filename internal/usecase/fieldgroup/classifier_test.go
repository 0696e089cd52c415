package fieldgroup

import (
	"testing"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		field     domain.FieldRequest
		pageCount int
		want      Group
	}{
		{
			"signature keyword in id",
			domain.FieldRequest{FieldID: "insured_signature", Question: "Is the document signed?", ExpectedType: domain.TypeBoolean},
			10, GroupSignature,
		},
		{
			"json expected type",
			domain.FieldRequest{FieldID: "policy_summary", Question: "Summarize the policy", ExpectedType: domain.TypeJSON},
			10, GroupComprehensive,
		},
		{
			"consolidated question",
			domain.FieldRequest{FieldID: "core_fields", Question: "Policy number; insured name; effective date", ExpectedType: domain.TypeText},
			10, GroupComprehensive,
		},
		{
			"long document",
			domain.FieldRequest{FieldID: "loss_address", Question: "What is the loss address?", ExpectedType: domain.TypeText},
			80, GroupComplex,
		},
		{
			"short document",
			domain.FieldRequest{FieldID: "loss_address", Question: "What is the loss address?", ExpectedType: domain.TypeText},
			12, GroupSimple,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.field, tt.pageCount); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPartition_PreservesOrder(t *testing.T) {
	fields := []domain.FieldRequest{
		{FieldID: "a_date", Question: "Effective date?", ExpectedType: domain.TypeDate},
		{FieldID: "b_name", Question: "Insured name?", ExpectedType: domain.TypeText},
		{FieldID: "c_signature", Question: "Signed?", ExpectedType: domain.TypeBoolean},
	}
	got := Partition(fields, 5)

	simple := got[GroupSimple]
	if len(simple) != 2 || simple[0].FieldID != "a_date" || simple[1].FieldID != "b_name" {
		t.Errorf("Partition() simple group = %+v, want declared order", simple)
	}
	if len(got[GroupSignature]) != 1 {
		t.Errorf("Partition() signature group size = %d, want 1", len(got[GroupSignature]))
	}
}

func TestConcurrencyAndEarlyExit(t *testing.T) {
	if got := Concurrency(GroupComprehensive); got != 1 {
		t.Errorf("Concurrency(comprehensive) = %d, want 1", got)
	}
	if got := Concurrency(GroupSimple); got != 3 {
		t.Errorf("Concurrency(simple) = %d, want 3", got)
	}
	if got := Concurrency(GroupSignature); got != 2 {
		t.Errorf("Concurrency(signature) = %d, want 2", got)
	}
	if EarlyExitAllowed(GroupComprehensive) {
		t.Error("EarlyExitAllowed(comprehensive) = true, want false")
	}
	if !EarlyExitAllowed(GroupSignature) {
		t.Error("EarlyExitAllowed(signature) = false, want true")
	}
}
