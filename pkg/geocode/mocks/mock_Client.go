// Package mocks provides test doubles for the geocode client.
package mocks

import (
	"context"

	geocode "github.com/sells-group/listing-geocoder/pkg/geocode"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Geocode provides a mock function with given fields: ctx, query
func (_m *MockClient) Geocode(ctx context.Context, query string) (*geocode.Result, error) {
	ret := _m.Called(ctx, query)

	if len(ret) == 0 {
		panic("no return value specified for Geocode")
	}

	var r0 *geocode.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*geocode.Result, error)); ok {
		return rf(ctx, query)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *geocode.Result); ok {
		r0 = rf(ctx, query)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*geocode.Result)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, query)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
