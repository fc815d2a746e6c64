package table

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/entity-mapper/internal/cache"
	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/database"
	"github.com/rzpsarthak13/entity-mapper/internal/events"
	"github.com/rzpsarthak13/entity-mapper/internal/lazy"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
	"github.com/rzpsarthak13/entity-mapper/internal/query"
	"github.com/rzpsarthak13/entity-mapper/internal/schema"
)

type member struct {
	ID   string `orm:"id,pk"`
	Name string `orm:"name"`
	Age  *int32 `orm:"age"`
}

type customer struct {
	ID      string   `orm:"id,pk"`
	Name    string   `orm:"name"`
	Orders  []order  `orm:"orders,onetomany,mappedby=customer,cascade=all"`
	Profile *profile `orm:"profile,onetoone,mappedby=customer,cascade=persist"`
}

type order struct {
	ID         string             `orm:"id,pk"`
	Total      float64            `orm:"total"`
	CustomerID *string            `orm:"customer_id"`
	Customer   lazy.Ref[customer] `orm:"customer,manytoone"`
}

type profile struct {
	ID         string `orm:"id,pk"`
	Bio        string `orm:"bio"`
	CustomerID string `orm:"customer_id"`
}

type invoice struct {
	ID         string    `orm:"id,pk"`
	CustomerID string    `orm:"customer_id"`
	Customer   *customer `orm:"customer,manytoone,cascade=persist"`
}

// testResolver creates engines on demand against one executor.
type testResolver struct {
	exec      core.Executor
	cache     *cache.EntityCache
	publisher core.ChangePublisher
	engines   map[reflect.Type]*Engine
}

func (r *testResolver) Resolve(ctx context.Context, t reflect.Type) (*Engine, error) {
	if e, ok := r.engines[t]; ok {
		return e, nil
	}
	desc, err := schema.Inspect(t)
	if err != nil {
		return nil, err
	}
	e, err := New(ctx, Options{
		Name:       schema.TableName(t),
		Descriptor: desc,
		Executor:   r.exec,
		Resolver:   r,
		Cache:      r.cache,
		Publisher:  r.publisher,
		Logger:     logging.Nop(),
	})
	if err != nil {
		return nil, err
	}
	r.engines[t] = e
	return e, nil
}

type fixture struct {
	exec      *database.SQLExecutor
	cache     *cache.EntityCache
	publisher *events.MemoryPublisher
	resolver  *testResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	exec, err := database.OpenSQLite(database.MemoryDSN(strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	f := &fixture{
		exec:      exec,
		cache:     cache.NewEntityCache(cache.NewMemoryStore(time.Minute), "test", time.Minute, logging.Nop()),
		publisher: events.NewMemoryPublisher(64),
	}
	f.resolver = &testResolver{exec: exec, cache: f.cache, publisher: f.publisher, engines: map[reflect.Type]*Engine{}}
	return f
}

func engineFor[T any](t *testing.T, f *fixture) *Engine {
	t.Helper()
	e, err := f.resolver.Resolve(context.Background(), reflect.TypeFor[T]())
	require.NoError(t, err)
	return e
}

func count(t *testing.T, exec core.Executor, table string) int {
	t.Helper()
	var n int
	_, err := core.QueryOne(context.Background(), exec, "SELECT COUNT(*) FROM "+table, nil, func(row core.Row) error {
		return row.Scan(&n)
	})
	require.NoError(t, err)
	return n
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	members := engineFor[member](t, f)

	assert.Equal(t, "members", members.Name())
	ddl, err := members.CreateTableSQL()
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS members (id TEXT NOT NULL PRIMARY KEY, name TEXT NOT NULL, age INTEGER)", ddl)

	require.NoError(t, members.Create(ctx, reflect.ValueOf(&member{ID: "u1", Name: "Jane", Age: lo.ToPtr(int32(31))})))

	got, err := members.Get(ctx, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, &member{ID: "u1", Name: "Jane", Age: lo.ToPtr(int32(31))}, got.Interface())

	_, err = members.Get(ctx, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, cache.Stats{Hits: 1, Misses: 1}, f.cache.Stats())

	_, err = members.Get(ctx, "nobody", false)
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "no row in table 'members' where id = nobody", err.Error())

	evs := f.publisher.Drain(10)
	require.Len(t, evs, 1)
	assert.Equal(t, core.OperationCreate, evs[0].Operation)
	assert.Equal(t, "members", evs[0].Table)
	assert.Equal(t, "u1", evs[0].Key)
	assert.Equal(t, int64(1), evs[0].Affected)
	assert.Equal(t, map[string]any{"id": "u1", "name": "Jane", "age": int32(31)}, evs[0].Data)
}

func TestCreateRejectsWrongEntity(t *testing.T) {
	f := newFixture(t)
	members := engineFor[member](t, f)

	assert.Error(t, members.Create(context.Background(), reflect.ValueOf(member{ID: "x"})))
	assert.Error(t, members.Create(context.Background(), reflect.ValueOf(&order{ID: "x"})))
	assert.Error(t, members.Create(context.Background(), reflect.ValueOf((*member)(nil))))
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	members := engineFor[member](t, f)

	for _, m := range []*member{
		{ID: "a", Name: "Ann", Age: lo.ToPtr(int32(25))},
		{ID: "b", Name: "Bob", Age: lo.ToPtr(int32(35))},
		{ID: "c", Name: "Cid"},
	} {
		require.NoError(t, members.Create(ctx, reflect.ValueOf(m)))
	}

	ids := func(rows reflect.Value) []string {
		return lo.Map(rows.Interface().([]member), func(m member, _ int) string { return m.ID })
	}

	rows, err := members.Find(ctx, nil, 0, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(rows))

	filter := query.NewFilter(members.Descriptor())
	filter.Add("age", query.GreaterOrEqual, 30)
	rows, err = members.Find(ctx, filter.Criteria(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(rows))

	filter = query.NewFilter(members.Descriptor())
	filter.Add("age", query.Equals, nil)
	rows, err = members.Find(ctx, filter.Criteria(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(rows))
	assert.Nil(t, rows.Interface().([]member)[0].Age)

	rows, err = members.Find(ctx, nil, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, rows.Len())

	filter = query.NewFilter(members.Descriptor())
	filter.Add("name", query.In)
	rows, err = members.Find(ctx, filter.Criteria(), 0, false)
	require.NoError(t, err)
	assert.Zero(t, rows.Len())
	assert.NotNil(t, rows.Interface())
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	members := engineFor[member](t, f)
	desc := members.Descriptor()

	require.NoError(t, members.Create(ctx, reflect.ValueOf(&member{ID: "u1", Name: "Jane"})))
	require.NoError(t, members.Create(ctx, reflect.ValueOf(&member{ID: "u2", Name: "John"})))
	f.publisher.Drain(10)

	// Warm the cache.
	_, err := members.Get(ctx, "u1", false)
	require.NoError(t, err)

	sets := query.NewSetList(desc)
	sets.Set("name", "Janet")
	where := query.NewFilter(desc)
	where.Add("id", query.Equals, "u1")
	n, err := members.Update(ctx, sets, where)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := members.Get(ctx, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, "Janet", got.Interface().(*member).Name)

	evs := f.publisher.Drain(10)
	require.Len(t, evs, 1)
	assert.Equal(t, core.OperationUpdate, evs[0].Operation)
	assert.Equal(t, "u1", evs[0].Key)
	assert.Equal(t, map[string]any{"name": "Janet"}, evs[0].Data)

	sets = query.NewSetList(desc)
	sets.Set("age", 40)
	n, err = members.Update(ctx, sets, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err = members.Get(ctx, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, lo.ToPtr(int32(40)), got.Interface().(*member).Age)
}

func TestUpdateBuildErrorsDoNotExecute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	members := engineFor[member](t, f)
	desc := members.Descriptor()

	_, err := members.Update(ctx, query.NewSetList(desc), nil)
	var noFields *core.NoUpdateFieldsError
	require.ErrorAs(t, err, &noFields)

	sets := query.NewSetList(desc)
	sets.Set("nickname", "x")
	_, err = members.Update(ctx, sets, nil)
	var unknown *core.UnknownFieldError
	require.ErrorAs(t, err, &unknown)

	sets = query.NewSetList(desc)
	sets.Set("name", "x")
	where := query.NewFilter(desc)
	where.Add("shoe_size", query.Equals, 1)
	_, err = members.Update(ctx, sets, where)
	require.ErrorAs(t, err, &unknown)

	assert.Zero(t, f.publisher.Len())
}

func TestCascadePersistInverse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	customers := engineFor[customer](t, f)
	orders := engineFor[order](t, f)

	c := &customer{
		ID:      "c1",
		Name:    "Acme",
		Orders:  []order{{ID: "o1", Total: 10}, {ID: "o2", Total: 20.5}},
		Profile: &profile{ID: "p1", Bio: "widgets"},
	}
	require.NoError(t, customers.Create(ctx, reflect.ValueOf(c)))

	assert.Equal(t, lo.ToPtr("c1"), c.Orders[0].CustomerID)
	assert.Equal(t, "c1", c.Profile.CustomerID)
	assert.Equal(t, 2, count(t, f.exec, "orders"))
	assert.Equal(t, 1, count(t, f.exec, "profiles"))

	got, err := customers.Get(ctx, "c1", true)
	require.NoError(t, err)
	loaded := got.Interface().(*customer)
	assert.ElementsMatch(t, []string{"o1", "o2"}, lo.Map(loaded.Orders, func(o order, _ int) string { return o.ID }))
	require.NotNil(t, loaded.Profile)
	assert.Equal(t, "widgets", loaded.Profile.Bio)

	rows, err := orders.Find(ctx, nil, 0, true)
	require.NoError(t, err)
	for _, o := range rows.Interface().([]order) {
		assert.False(t, o.Customer.IsLoaded())
		owner, err := o.Customer.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Acme", owner.Name)
		assert.Equal(t, 1, o.Customer.Loads())
	}
}

func TestCascadePersistOwning(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	invoices := engineFor[invoice](t, f)

	inv := &invoice{ID: "i1", Customer: &customer{ID: "c9", Name: "Globex"}}
	require.NoError(t, invoices.Create(ctx, reflect.ValueOf(inv)))
	assert.Equal(t, "c9", inv.CustomerID)
	assert.Equal(t, 1, count(t, f.exec, "customers"))

	got, err := invoices.Get(ctx, "i1", true)
	require.NoError(t, err)
	require.NotNil(t, got.Interface().(*invoice).Customer)
	assert.Equal(t, "Globex", got.Interface().(*invoice).Customer.Name)

	got, err = invoices.Get(ctx, "i1", false)
	require.NoError(t, err)
	assert.Nil(t, got.Interface().(*invoice).Customer)
}

func TestCascadeRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	customers := engineFor[customer](t, f)
	orders := engineFor[order](t, f)

	require.NoError(t, orders.Create(ctx, reflect.ValueOf(&order{ID: "o1", Total: 1})))
	f.publisher.Drain(10)

	err := customers.Create(ctx, reflect.ValueOf(&customer{ID: "c1", Name: "Acme", Orders: []order{{ID: "o1"}}}))
	var execErr *core.ExecutionError
	require.ErrorAs(t, err, &execErr)

	assert.Zero(t, count(t, f.exec, "customers"))
	assert.Equal(t, 1, count(t, f.exec, "orders"))
	assert.Zero(t, f.publisher.Len())
}

func TestCascadeDuplicateChildKeysFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	customers := engineFor[customer](t, f)
	engineFor[order](t, f)

	err := customers.Create(ctx, reflect.ValueOf(&customer{
		ID:     "c1",
		Name:   "Acme",
		Orders: []order{{ID: "o1", Total: 1}, {ID: "o1", Total: 2}},
	}))
	var execErr *core.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.SQL, "INSERT INTO orders")

	assert.Zero(t, count(t, f.exec, "customers"))
	assert.Zero(t, count(t, f.exec, "orders"))
	assert.Zero(t, f.publisher.Len())
}

func TestEventsWaitForCallerCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	members := engineFor[member](t, f)

	boom := errors.New("boom")
	err := f.exec.WithTx(ctx, func(ctx context.Context, _ core.Executor) error {
		require.NoError(t, members.Create(ctx, reflect.ValueOf(&member{ID: "u1", Name: "Jane"})))
		assert.Zero(t, f.publisher.Len())
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, f.publisher.Len())

	err = f.exec.WithTx(ctx, func(ctx context.Context, _ core.Executor) error {
		if err := members.Create(ctx, reflect.ValueOf(&member{ID: "u2", Name: "John"})); err != nil {
			return err
		}
		_, err := members.Update(ctx, setList(t, members, "name", "Johnny"), nil)
		assert.Zero(t, f.publisher.Len())
		return err
	})
	require.NoError(t, err)

	evs := f.publisher.Drain(10)
	require.Len(t, evs, 2)
	assert.Equal(t, core.OperationCreate, evs[0].Operation)
	assert.Equal(t, "u2", evs[0].Key)
	assert.Equal(t, core.OperationUpdate, evs[1].Operation)
}

func setList(t *testing.T, e *Engine, field string, value any) *query.SetList {
	t.Helper()
	sets := query.NewSetList(e.Descriptor())
	sets.Set(field, value)
	require.NoError(t, sets.Err())
	return sets
}

func TestLazyNullForeignKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	orders := engineFor[order](t, f)

	require.NoError(t, orders.Create(ctx, reflect.ValueOf(&order{ID: "o1", Total: 3})))
	got, err := orders.Get(ctx, "o1", true)
	require.NoError(t, err)

	o := got.Interface().(*order)
	assert.True(t, o.Customer.IsLoaded())
	owner, err := o.Customer.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, owner)
}

func TestLazyDanglingForeignKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	orders := engineFor[order](t, f)

	require.NoError(t, orders.Create(ctx, reflect.ValueOf(&order{ID: "o1", CustomerID: lo.ToPtr("ghost")})))
	got, err := orders.Get(ctx, "o1", true)
	require.NoError(t, err)

	_, err = got.Interface().(*order).Customer.Get(ctx)
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "customers", notFound.Table)
}

func TestCascadeRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	customers := engineFor[customer](t, f)

	c := &customer{ID: "c1", Name: "Acme", Orders: []order{{ID: "o1"}, {ID: "o2"}}, Profile: &profile{ID: "p1"}}
	require.NoError(t, customers.Create(ctx, reflect.ValueOf(c)))
	f.publisher.Drain(10)

	n, err := customers.Delete(ctx, reflect.ValueOf(&customer{ID: "c1"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Zero(t, count(t, f.exec, "customers"))
	assert.Zero(t, count(t, f.exec, "orders"))
	// Profile only cascades persist.
	assert.Equal(t, 1, count(t, f.exec, "profiles"))

	evs := f.publisher.Drain(10)
	require.Len(t, evs, 3)
	for _, ev := range evs {
		assert.Equal(t, core.OperationDelete, ev.Operation)
	}
	assert.Equal(t, "customers", evs[2].Table)

	_, err = customers.Get(ctx, "c1", false)
	var notFound *core.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRelationshipTargetsAreChecked(t *testing.T) {
	type broken struct {
		ID    string    `orm:"id,pk"`
		Items []profile `orm:"items,onetomany,mappedby=owner"`
	}

	f := newFixture(t)
	_, err := f.resolver.Resolve(context.Background(), reflect.TypeFor[broken]())
	var mapping *core.MappingError
	require.ErrorAs(t, err, &mapping)
	assert.Contains(t, mapping.Reason, "owner_id")
}
