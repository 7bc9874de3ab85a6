package tle

import (
	"context"
	"errors"
	"testing"
)

func TestSplitRecords(t *testing.T) {
	text := join(
		"# catalog",
		issName,
		issLine1,
		issLine2,
		"",
		issLine1,
		issLine2,
		"0 LONELY NAME",
		"2 orphan",
	)
	recs := SplitRecords(text)
	if len(recs) != 3 {
		t.Fatalf("got %d records: %+v", len(recs), recs)
	}
	if recs[0].Name != issName || recs[0].Line != 2 {
		t.Fatalf("first record = %+v", recs[0])
	}
	if recs[0].Text != join("# catalog", issName, issLine1, issLine2) {
		t.Fatalf("first text = %q", recs[0].Text)
	}
	if recs[1].Name != "" || recs[1].Line != 6 || recs[1].Text != join(issLine1, issLine2) {
		t.Fatalf("second record = %+v", recs[1])
	}
	if recs[2].Name != "LONELY NAME" || recs[2].Index != 2 {
		t.Fatalf("third record = %+v", recs[2])
	}

	withNow(t, issEpochNow)
	if !Validate(recs[0].Text, DefaultOptions()).Valid || !Validate(recs[1].Text, DefaultOptions()).Valid {
		t.Fatalf("split records should validate")
	}
	if Validate(recs[2].Text, DefaultOptions()).Valid {
		t.Fatalf("orphan record should not validate")
	}
}

func TestSplitRecordsDanglingLine1(t *testing.T) {
	recs := SplitRecords(join(issLine1, issLine1, issLine2))
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Text != issLine1 {
		t.Fatalf("dangling record = %q", recs[0].Text)
	}
}

func TestValidateBatchKeepsOrder(t *testing.T) {
	withNow(t, issEpochNow)
	texts := []string{
		join(issLine1, issLine2),
		"",
		join(issLine1, issLine2Other),
		join(issName, issLine1, issLine2),
	}
	got, err := ValidateBatch(context.Background(), texts, DefaultOptions(), 2)
	if err != nil {
		t.Fatalf("ValidateBatch: %v", err)
	}
	want := []bool{true, false, false, true}
	for i, res := range got {
		if res.Valid != want[i] {
			t.Fatalf("result %d Valid = %v, want %v", i, res.Valid, want[i])
		}
	}

	recovered, err := RecoverBatch(context.Background(), texts, DefaultOptions(), 0)
	if err != nil {
		t.Fatalf("RecoverBatch: %v", err)
	}
	if recovered[1].FinalState != StateError || recovered[3].Record.Name != issName {
		t.Fatalf("recovered = %+v", recovered)
	}
}

func TestValidateBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ValidateBatch(ctx, []string{join(issLine1, issLine2)}, DefaultOptions(), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSplitRecordsTrailingComments(t *testing.T) {
	recs := SplitRecords(join(issName, issLine1, issLine2, "# end of catalog", "# eof") + "\n")
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Text != join(issName, issLine1, issLine2, "# end of catalog", "# eof") {
		t.Fatalf("text = %q", recs[0].Text)
	}
	withNow(t, issEpochNow)
	res := Validate(recs[0].Text, DefaultOptions())
	if !res.Valid || len(res.Record.Comments) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if got := SplitRecords("# a\n# b\n"); len(got) != 0 {
		t.Fatalf("comment-only text = %+v", got)
	}
}
