package dataaccess

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingDriver struct {
	mu       sync.Mutex
	pingErr  error
	lastConn *stubConn
}

type stubConn struct {
	driver *trackingDriver
	closed bool
}

func (d *trackingDriver) Open(string) (driver.Conn, error) {
	conn := &stubConn{driver: d}
	d.mu.Lock()
	d.lastConn = conn
	d.mu.Unlock()
	return conn, nil
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }

func (c *stubConn) Close() error {
	c.driver.mu.Lock()
	c.closed = true
	c.driver.mu.Unlock()
	return nil
}

func (c *stubConn) Ping(context.Context) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()
	return c.driver.pingErr
}

var testDriver = &trackingDriver{}

func init() {
	sql.Register("stub", testDriver)
}

func resetDriver(pingErr error) {
	testDriver.mu.Lock()
	defer testDriver.mu.Unlock()
	testDriver.pingErr = pingErr
	testDriver.lastConn = nil
}

func TestConfigureSQL(t *testing.T) {
	resetDriver(nil)
	db, err := sql.Open("stub", "config")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ConfigureSQL(db, SQLConfig{MaxIdleConns: 3, MaxOpenConns: 5, ConnMaxLifetime: time.Minute})
	assert.Equal(t, 5, db.Stats().MaxOpenConnections)

	ConfigureSQL(db, SQLConfig{})
	assert.Equal(t, 5, db.Stats().MaxOpenConnections)
}

func TestOpenSQL(t *testing.T) {
	resetDriver(nil)
	db, err := OpenSQL(context.Background(), "stub", SQLConfig{DSN: "ok", MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
	require.NoError(t, SQLProbe(db)(context.Background()))
	testDriver.mu.Lock()
	defer testDriver.mu.Unlock()
	assert.NotNil(t, testDriver.lastConn)
}

func TestOpenSQLPingFailureClosesConnection(t *testing.T) {
	resetDriver(errors.New("ping failed"))

	_, err := OpenSQL(context.Background(), "stub", SQLConfig{DSN: "fail"})
	require.ErrorContains(t, err, "ping failed")

	testDriver.mu.Lock()
	defer testDriver.mu.Unlock()
	require.NotNil(t, testDriver.lastConn)
	assert.True(t, testDriver.lastConn.closed)
}
