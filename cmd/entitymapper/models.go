package main

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/rzpsarthak13/entity-mapper/pkg/entitymapper"
)

type address struct {
	Street  string  `orm:"street"`
	City    string  `orm:"city"`
	Country string  `orm:"country"`
	Zip     *string `orm:"zip"`
}

type customer struct {
	ID        uuid.UUID                       `orm:"id,pk"`
	Name      string                          `orm:"name"`
	Email     string                          `orm:"email"`
	Tier      int16                           `orm:"tier"`
	Active    bool                            `orm:"active"`
	CreatedAt time.Time                       `orm:"created_at"`
	Billing   address                         `orm:"billing,embedded,prefix=bill"`
	Orders    entitymapper.LazyList[purchase] `orm:"orders,onetomany,mappedby=customer,cascade=all"`
}

type purchase struct {
	ID         int64                       `orm:"id,pk"`
	Amount     float64                     `orm:"amount"`
	Discount   *float32                    `orm:"discount"`
	Quantity   int32                       `orm:"quantity"`
	CustomerID *uuid.UUID                  `orm:"customer_id"`
	Customer   entitymapper.Lazy[customer] `orm:"customer,manytoone"`
}

var samples = []reflect.Type{
	reflect.TypeFor[customer](),
	reflect.TypeFor[purchase](),
}
