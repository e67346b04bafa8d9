package cachetree

import (
	"encoding/json"
	"testing"

	"github.com/railconnect/route-finder/pkg/railtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cachedRoutes = `[
	{"type":"direct","train_number":"12952","train_name":"Mumbai Rajdhani",
	 "departure":"2024-01-01 10:00:00","arrival":"2024-01-02 02:00:00","duration_mins":960,"switches":0},
	{"type":"connecting","leg1":{"train_number":"12904","train_name":"Golden Temple Mail","from":"NDLS","to":"RTM",
	 "departure":"2024-01-01 23:50:00","arrival":"2024-01-02 09:10:00"},
	 "layover_mins":30,"transfer_station":"RTM","transfer_station_name":"Ratlam Jn",
	 "leg2":{"train_number":"12962","train_name":"Avantika Exp","from":"RTM","to":"BCT",
	 "departure":"2024-01-02 09:40:00","arrival":"2024-01-02 17:00:00"},
	 "total_duration_mins":1030,"switches":1,"note":"2024-13-45 99:99:99","delayed":false,"platform":null}
]`

func mustParse(t *testing.T, doc string) Value {
	t.Helper()
	v, err := Parse([]byte(doc))
	require.NoError(t, err)
	return v
}

func field(t *testing.T, v Value, path ...string) Value {
	t.Helper()
	cur := v
	for _, key := range path {
		next, ok := cur.Get(key)
		require.True(t, ok, "missing key %s", key)
		cur = next
	}
	return cur
}

func TestParse_RoundTripPreservesOrder(t *testing.T) {
	v := mustParse(t, `{"b":1,"a":[true,null,"x"],"c":{"z":2.5}}`)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":[true,null,"x"],"c":{"z":2.5}}`, string(out))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"a":`))
	assert.Error(t, err)

	_, err = Parse([]byte(`[1] [2]`))
	assert.Error(t, err)
}

func TestRebase_CacheHitScenario(t *testing.T) {
	doc := mustParse(t, cachedRoutes)
	canonical, _ := railtime.ParseDate("2024-01-01")
	requested, _ := railtime.ParseDate("2026-03-01")

	rebased := RebaseDate(doc, canonical, requested)

	direct := rebased.Array[0]
	assert.Equal(t, "2026-03-01 10:00:00", field(t, direct, "departure").String)
	assert.Equal(t, "2026-03-02 02:00:00", field(t, direct, "arrival").String)
	assert.Equal(t, "12952", field(t, direct, "train_number").String)
	assert.Equal(t, json.Number("960"), field(t, direct, "duration_mins").Number)

	conn := rebased.Array[1]
	assert.Equal(t, "2026-03-02 09:40:00", field(t, conn, "leg2", "departure").String)
	assert.Equal(t, "RTM", field(t, conn, "leg1", "to").String)
	assert.Equal(t, "2024-13-45 99:99:99", field(t, conn, "note").String, "unparseable 19-char strings stay as they are")
	assert.Equal(t, Null, field(t, conn, "platform").Kind)
	assert.Equal(t, Bool, field(t, conn, "delayed").Kind)
}

func TestRebase_DoesNotMutateInput(t *testing.T) {
	doc := mustParse(t, cachedRoutes)
	before, err := json.Marshal(doc)
	require.NoError(t, err)

	_ = Rebase(doc, 45)

	after, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRebase_IdentityAtCanonicalDate(t *testing.T) {
	doc := mustParse(t, cachedRoutes)
	canonical, _ := railtime.ParseDate("2024-01-01")

	before, _ := json.Marshal(doc)
	after, _ := json.Marshal(RebaseDate(doc, canonical, canonical))
	assert.JSONEq(t, string(before), string(after))
}

func TestRebaseDate_FarFuture(t *testing.T) {
	doc := mustParse(t, cachedRoutes)
	canonical, _ := railtime.ParseDate("2024-01-01")
	requested, _ := railtime.ParseDate("2400-01-01")

	rebased := RebaseDate(doc, canonical, requested)
	assert.Equal(t, "2400-01-01 10:00:00", field(t, rebased.Array[0], "departure").String)
}

func TestRebase_Additive(t *testing.T) {
	doc := mustParse(t, cachedRoutes)
	canonical, _ := railtime.ParseDate("2024-01-01")
	d1, _ := railtime.ParseDate("2024-02-28")
	d2, _ := railtime.ParseDate("2025-03-01")

	viaD1 := RebaseDate(RebaseDate(doc, canonical, d1), d1, d2)
	direct := RebaseDate(doc, canonical, d2)

	a, _ := json.Marshal(viaD1)
	b, _ := json.Marshal(direct)
	assert.JSONEq(t, string(b), string(a))
}

func TestRebase_LeapYearBoundary(t *testing.T) {
	v := Arr(Str("2024-02-28 23:00:00"), Str("short"), Num(7))

	out := Rebase(v, 1)
	assert.Equal(t, "2024-02-29 23:00:00", out.Array[0].String)
	assert.Equal(t, "short", out.Array[1].String)
	assert.Equal(t, json.Number("7"), out.Array[2].Number)

	back := Rebase(out, -366)
	assert.Equal(t, "2023-02-28 23:00:00", back.Array[0].String)
}
