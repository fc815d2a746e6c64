package entitymapper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/database"
	"github.com/rzpsarthak13/entity-mapper/internal/events"
)

type address struct {
	Street string  `orm:"street"`
	City   string  `orm:"city"`
	Zip    *string `orm:"zip"`
}

type author struct {
	ID      uuid.UUID      `orm:"id,pk"`
	Name    string         `orm:"name"`
	Age     *int32         `orm:"age"`
	Address address        `orm:"address,embedded,prefix=addr"`
	Books   LazyList[book] `orm:"books,onetomany,mappedby=author,cascade=all"`
	Scratch string         `orm:"-"`
}

type book struct {
	ID       int64        `orm:"id,pk"`
	Title    string       `orm:"title"`
	Pages    int32        `orm:"pages"`
	AuthorID *uuid.UUID   `orm:"author_id"`
	Author   Lazy[author] `orm:"author,manytoone"`
}

type account struct {
	ID    int64   `orm:"id,pk"`
	Owner string  `orm:"owner"`
	Level int32   `orm:"level"`
	Note  *string `orm:"note"`
}

// mockExecutor records statements without a database.
type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	ret := m.Called(ctx, query, args)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *mockExecutor) Query(ctx context.Context, query string, args []any, scan func(core.Row) error) error {
	return m.Called(ctx, query, args).Error(0)
}

func (m *mockExecutor) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.Executor) error) error {
	return fn(core.ContextWithExecutor(ctx, m), m)
}

func (m *mockExecutor) Dialect() core.Dialect { return core.SQLite }

func isCreate(q string) bool { return strings.HasPrefix(q, "CREATE TABLE") }

func openTest(t *testing.T, cfg *Config, opts ...Option) *Database {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Database.DSN = database.MemoryDSN(strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := Open(context.Background(), cfg, append([]Option{WithLogger(NopLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRegisterIssuesDDLOnce(t *testing.T) {
	ctx := context.Background()
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, mock.MatchedBy(isCreate), mock.Anything).Return(int64(0), nil).Once()

	db, err := New(ctx, exec, nil, WithLogger(NopLogger()))
	require.NoError(t, err)

	first, err := Register[account](ctx, db, "")
	require.NoError(t, err)
	second, err := Register[account](ctx, db, "accounts")
	require.NoError(t, err)
	assert.Equal(t, "accounts", first.Name())
	assert.Equal(t, first.engine, second.engine)

	exec.AssertExpectations(t)
	exec.AssertCalled(t, "Exec", mock.Anything,
		"CREATE TABLE IF NOT EXISTS accounts (id BIGINT NOT NULL PRIMARY KEY, owner TEXT NOT NULL, level INTEGER NOT NULL, note TEXT)",
		mock.Anything)
	assert.Equal(t, []string{"accounts"}, db.Tables())
}

func TestBuildErrorsNeverReachExecutor(t *testing.T) {
	ctx := context.Background()
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, mock.MatchedBy(isCreate), mock.Anything).Return(int64(0), nil).Once()

	db, err := New(ctx, exec, nil, WithLogger(NopLogger()))
	require.NoError(t, err)
	accounts, err := Register[account](ctx, db, "")
	require.NoError(t, err)

	_, err = accounts.Update().Set("balance", 10).Where("id", 1).Execute(ctx)
	var unknown *UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "unknown field 'balance' for entity account", err.Error())

	_, err = accounts.FindMany().Where("owner", "x").WhereGreaterThan("missing", 1).Execute(ctx)
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Field)

	_, err = accounts.FindOne().Where("level", "not a number").Execute(ctx)
	require.Error(t, err)

	_, err = accounts.Update().Where("id", 1).Execute(ctx)
	var noFields *NoUpdateFieldsError
	require.ErrorAs(t, err, &noFields)
	assert.Equal(t, "no fields specified for update on table 'accounts'", err.Error())

	exec.AssertNumberOfCalls(t, "Exec", 1)
	exec.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateRendersArgumentsInOrder(t *testing.T) {
	ctx := context.Background()
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, mock.MatchedBy(isCreate), mock.Anything).Return(int64(0), nil).Once()
	exec.On("Exec", mock.Anything,
		"UPDATE accounts SET level = ?, note = ? WHERE owner = ? AND id IN (?, ?)",
		mock.MatchedBy(func(args []any) bool {
			return len(args) == 5 && args[0] == int32(3) && args[2] == "ann" && args[3] == int64(1) && args[4] == int64(2)
		}),
	).Return(int64(2), nil).Once()

	db, err := New(ctx, exec, nil, WithLogger(NopLogger()))
	require.NoError(t, err)
	accounts, err := Register[account](ctx, db, "")
	require.NoError(t, err)

	n, err := accounts.Update().
		Set("level", 3).
		Set("note", nil).
		Where("owner", "ann").
		WhereIn("id", 1, 2).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	exec.AssertExpectations(t)
}

func TestNameBoundToAnotherType(t *testing.T) {
	ctx := context.Background()
	db := openTest(t, nil)

	_, err := Register[account](ctx, db, "things")
	require.NoError(t, err)

	_, err = Register[book](ctx, db, "things")
	var mapping *MappingError
	require.ErrorAs(t, err, &mapping)
	assert.Contains(t, err.Error(), "table 'things' is registered with entity type")

	_, err = Get[book](db, "things")
	require.ErrorAs(t, err, &mapping)

	got, err := Get[account](db, "things")
	require.NoError(t, err)
	assert.Equal(t, "things", got.Name())
}

func TestCrudRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTest(t, nil)

	accounts, err := Register[account](ctx, db, "")
	require.NoError(t, err)

	note := "vip"
	for _, a := range []*account{
		{ID: 1, Owner: "ann", Level: 1, Note: &note},
		{ID: 2, Owner: "bob", Level: 2},
		{ID: 3, Owner: "bea", Level: 3},
	} {
		require.NoError(t, accounts.Create(ctx, a))
	}

	one, err := accounts.FindOne().Where("owner", "ann").Execute(ctx)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, account{ID: 1, Owner: "ann", Level: 1, Note: &note}, *one)

	none, err := accounts.FindFirst().Where("owner", "zed").Execute(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	nulls, err := accounts.FindMany().Where("note", nil).Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, nulls, 2)

	bs, err := accounts.FindMany().WhereLike("owner", "b%").WhereBetween("level", 2, 3).Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, bs, 2)

	empty, err := accounts.FindMany().WhereIn("id").Execute(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	all, err := accounts.FindMany().WhereNotIn("id").Limit(2).Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	n, err := accounts.Update().Set("level", 9).WhereGreaterOrEqual("level", 2).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := accounts.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(9), got.Level)

	n, err = accounts.Delete(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = accounts.Get(ctx, 3)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "accounts", notFound.Table)
}

func TestRelationshipsAndCascade(t *testing.T) {
	ctx := context.Background()
	db := openTest(t, nil)

	authors, err := Register[author](ctx, db, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"authors", "books"}, db.Tables())

	zip := "10115"
	id := uuid.New()
	a := &author{
		ID:      id,
		Name:    "Ursula",
		Address: address{Street: "Main", City: "Berlin", Zip: &zip},
		Books:   LoadedList([]book{{ID: 1, Title: "Lathe", Pages: 184}, {ID: 2, Title: "Dispossessed", Pages: 387}}),
		Scratch: "ignored",
	}
	require.NoError(t, authors.Create(ctx, a))

	books, err := Get[book](db, "books")
	require.NoError(t, err)
	stored, err := books.FindMany().Where("author_id", id).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	b, err := books.FindOne().Where("title", "Lathe").WithRelationships(true).Execute(ctx)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.False(t, b.Author.IsLoaded())
	owner, err := b.Author.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "Berlin", owner.Address.City)
	assert.Equal(t, &zip, owner.Address.Zip)
	assert.Empty(t, owner.Scratch)

	loaded, err := authors.FindOne().Where("address.city", "Berlin").WithRelationships(true).Execute(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	list, err := loaded.Books.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	plain, err := authors.Get(ctx, id)
	require.NoError(t, err)
	_, err = plain.Books.Get(ctx)
	assert.ErrorIs(t, err, ErrUnbound)

	n, err := authors.Delete(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := books.FindMany().Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTest(t, nil)
	accounts, err := Register[account](ctx, db, "")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.Transaction(ctx, func(ctx context.Context) error {
		if err := accounts.Create(ctx, &account{ID: 1, Owner: "ann"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := accounts.FindMany().Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	err = db.Transaction(ctx, func(ctx context.Context) error {
		return accounts.Create(ctx, &account{ID: 2, Owner: "bob"})
	})
	require.NoError(t, err)
	got, err := accounts.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Owner)
}

func TestTablesRegisteredInRolledBackTransaction(t *testing.T) {
	ctx := context.Background()
	db := openTest(t, nil)

	boom := errors.New("boom")
	err := db.Transaction(ctx, func(ctx context.Context) error {
		authors, err := Register[author](ctx, db, "")
		if err != nil {
			return err
		}
		a := &author{ID: uuid.New(), Name: "Ann", Books: LoadedList([]book{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}})}
		if err := authors.Create(ctx, a); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, db.Tables())

	_, err = Register[author](ctx, db, "")
	require.NoError(t, err)
	books, err := Register[book](ctx, db, "")
	require.NoError(t, err)
	rows, err := books.FindMany().Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCreateWithDuplicateChildKeysFails(t *testing.T) {
	ctx := context.Background()
	db := openTest(t, nil)
	authors, err := Register[author](ctx, db, "")
	require.NoError(t, err)

	err = authors.Create(ctx, &author{
		ID:    uuid.New(),
		Name:  "Ann",
		Books: LoadedList([]book{{ID: 1, Title: "a"}, {ID: 1, Title: "b"}}),
	})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)

	books, err := Get[book](db, "books")
	require.NoError(t, err)
	rows, err := books.FindMany().Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestChangeEventsAndReadyHooks(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Events.Type = "memory"
	publisher := events.NewMemoryPublisher(16)
	db := openTest(t, cfg, WithPublisher(publisher))

	var ready []string
	db.OnTableReady(func(_ context.Context, table string, schema *Schema) error {
		ready = append(ready, table+":"+schema.PrimaryKey)
		return nil
	})

	accounts, err := Register[account](ctx, db, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts:id"}, ready)

	require.NoError(t, accounts.Create(ctx, &account{ID: 7, Owner: "ann", Level: 1}))
	_, err = accounts.Update().Set("level", 2).Where("id", 7).Execute(ctx)
	require.NoError(t, err)

	got := publisher.Drain(0)
	require.Len(t, got, 2)
	assert.Equal(t, core.OperationCreate, got[0].Operation)
	assert.Equal(t, "accounts", got[0].Table)
	assert.Equal(t, core.OperationUpdate, got[1].Operation)
	assert.Equal(t, int64(7), got[1].Key)
	assert.Equal(t, map[string]any{"level": int32(2)}, got[1].Data)
}

type person struct {
	ID   uuid.UUID `orm:"id,pk"`
	Name string    `orm:"name"`
	Age  *int32    `orm:"age"`
}

func TestPersonScenario(t *testing.T) {
	ctx := context.Background()
	db := openTest(t, nil)
	people, err := Register[person](ctx, db, "")
	require.NoError(t, err)
	assert.Equal(t, "people", people.Name())

	age := func(n int32) *int32 { return &n }
	u1, u2, u3, u4, u5 := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, people.Create(ctx, &person{ID: u1, Name: "John", Age: age(25)}))
	require.NoError(t, people.Create(ctx, &person{ID: u2, Name: "Jane"}))
	require.NoError(t, people.Create(ctx, &person{ID: u3, Name: "Joan", Age: age(35)}))
	require.NoError(t, people.Create(ctx, &person{ID: u4, Name: "Jill", Age: age(20)}))
	require.NoError(t, people.Create(ctx, &person{ID: u5, Name: "Jack", Age: age(30)}))

	john, err := people.FindFirst().Where("id", u1).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, &person{ID: u1, Name: "John", Age: age(25)}, john)

	nulls, err := people.FindMany().Where("age", nil).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []person{{ID: u2, Name: "Jane"}}, nulls)

	nulls, err = people.FindMany().WhereIsNull("age").Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, nulls, 1)

	set, err := people.FindMany().WhereIsNotNull("age").Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 4)

	in, err := people.FindMany().WhereIn("age", 25, 30, 35).Execute(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{u1, u3, u5}, ids(in))

	// Both bounds are inclusive.
	between, err := people.FindMany().WhereBetween("age", 20, 30).Execute(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{u1, u4, u5}, ids(between))

	outside, err := people.FindMany().WhereBetween("age", 21, 29).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u1}, ids(outside))

	var rangeErr *RangeError
	_, err = people.FindMany().Where("age", 25.9).Execute(ctx)
	require.ErrorAs(t, err, &rangeErr)
	_, err = people.Update().Set("age", int64(1)<<40).Where("id", u1).Execute(ctx)
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "age", rangeErr.Field)

	n, err := people.Update().Set("age", 26).Where("id", uuid.New()).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = people.Update().Set("age", 26).Where("id", u1).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	others, err := people.FindMany().WhereNot("name", "John").WhereLessThan("age", 100).Execute(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{u3, u4, u5}, ids(others))
}

func ids(people []person) []uuid.UUID {
	out := make([]uuid.UUID, len(people))
	for i, p := range people {
		out[i] = p.ID
	}
	return out
}
