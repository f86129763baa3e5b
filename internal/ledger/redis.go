package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	// defaultLockGrace keeps lock keys alive a little past the hold window so the
	// hold's own expires_at, not Redis eviction, decides when a hold is over.
	defaultLockGrace = time.Minute
	// committedHoldTTL keeps a committed hold around so a repeated commit is a no-op.
	committedHoldTTL = 24 * time.Hour

	errHoldNotFoundPrefix  = "HOLD_NOT_FOUND"
	errHoldMismatchPrefix  = "HOLD_MISMATCH"
	errHoldCommittedPrefix = "HOLD_COMMITTED"
	errSeatConflictPrefix  = "SEAT_CONFLICT"
)

// Redis Lua script that holds seats for a booking all-or-nothing. A booking that
// already has a hold gets its seat set replaced in the same step.
var reserveSeatsScript = redis.NewScript(`
	-- KEYS = [hold key, seat lock index set, booked seats hash]
	-- ARGV = [bookingID, screeningID, expiresAtMs, nowMs, ttlMs, seat codes...]
	local holdKey, lockSet, bookedKey = KEYS[1], KEYS[2], KEYS[3]
	local bookingId, screeningId = ARGV[1], ARGV[2]
	local now, ttl = tonumber(ARGV[4]), tonumber(ARGV[5])

	local function lockKey(seat)
		return "seat_lock:" .. screeningId .. ":" .. seat
	end

	local function holdAlive(owner)
		local exp = redis.call("HGET", "hold:" .. owner, "expires_at")
		return exp and tonumber(exp) > now
	end

	if redis.call("HGET", holdKey, "state") == "committed" then
		return {err = "HOLD_COMMITTED"}
	end

	local conflicts = {}
	local wanted = {}

	for i = 6, #ARGV do
		local seat = ARGV[i]
		wanted[seat] = true

		if redis.call("HEXISTS", bookedKey, seat) == 1 then
			table.insert(conflicts, seat)
		else
			local owner = redis.call("GET", lockKey(seat))
			if owner and owner ~= bookingId and holdAlive(owner) then
				table.insert(conflicts, seat)
			end
		end
	end

	if #conflicts > 0 then
		return conflicts
	end

	local previous = redis.call("HGET", holdKey, "seats")
	if previous then
		for seat in string.gmatch(previous, "[^,]+") do
			if not wanted[seat] and redis.call("GET", lockKey(seat)) == bookingId then
				redis.call("DEL", lockKey(seat))
				redis.call("SREM", lockSet, seat)
			end
		end
	end

	local seats = {}
	for i = 6, #ARGV do
		redis.call("SET", lockKey(ARGV[i]), bookingId, "PX", ttl)
		redis.call("SADD", lockSet, ARGV[i])
		table.insert(seats, ARGV[i])
	end

	redis.call("HSET", holdKey,
		"screening_id", screeningId,
		"seats", table.concat(seats, ","),
		"expires_at", ARGV[3],
		"state", "held")
	redis.call("PEXPIRE", holdKey, ttl)

	return {}
`)

// Redis Lua script that turns a booking's live hold into booked seats. The caller
// names the seats it expects the hold to cover.
var commitSeatsScript = redis.NewScript(`
	-- KEYS = [hold key]
	-- ARGV = [bookingID, committedTtlMs, nowMs, seat codes...]
	local holdKey, bookingId = KEYS[1], ARGV[1]
	local now = tonumber(ARGV[3])

	local state = redis.call("HGET", holdKey, "state")
	if not state then
		return {err = "HOLD_NOT_FOUND"}
	end
	if state == "held" and tonumber(redis.call("HGET", holdKey, "expires_at")) <= now then
		return {err = "HOLD_NOT_FOUND"}
	end

	local screeningId = redis.call("HGET", holdKey, "screening_id")
	local seats = redis.call("HGET", holdKey, "seats")
	local bookedKey = "seat_booked:" .. screeningId
	local lockSet = "seat_locks:" .. screeningId

	local expected = {}
	for i = 4, #ARGV do
		expected[ARGV[i]] = true
	end

	local count = 0
	for seat in string.gmatch(seats, "[^,]+") do
		if not expected[seat] then
			return {err = "HOLD_MISMATCH"}
		end
		count = count + 1
	end
	if count ~= #ARGV - 3 then
		return {err = "HOLD_MISMATCH"}
	end

	if state == "committed" then
		return "OK"
	end

	for seat in string.gmatch(seats, "[^,]+") do
		local bookedBy = redis.call("HGET", bookedKey, seat)
		local owner = redis.call("GET", "seat_lock:" .. screeningId .. ":" .. seat)
		if (bookedBy and bookedBy ~= bookingId) or (owner and owner ~= bookingId) then
			return {err = "SEAT_CONFLICT " .. seat}
		end
	end

	for seat in string.gmatch(seats, "[^,]+") do
		redis.call("HSET", bookedKey, seat, bookingId)
		redis.call("DEL", "seat_lock:" .. screeningId .. ":" .. seat)
		redis.call("SREM", lockSet, seat)
	end

	redis.call("HSET", holdKey, "state", "committed")
	redis.call("PEXPIRE", holdKey, ARGV[2])

	return "OK"
`)

// Redis Lua script that frees every seat a booking holds or has booked.
var releaseSeatsScript = redis.NewScript(`
	-- KEYS = [hold key]
	-- ARGV = [bookingID]
	local holdKey, bookingId = KEYS[1], ARGV[1]

	local state = redis.call("HGET", holdKey, "state")
	if not state then
		return 0
	end

	local screeningId = redis.call("HGET", holdKey, "screening_id")
	local seats = redis.call("HGET", holdKey, "seats")
	local bookedKey = "seat_booked:" .. screeningId
	local lockSet = "seat_locks:" .. screeningId

	for seat in string.gmatch(seats, "[^,]+") do
		local lockKey = "seat_lock:" .. screeningId .. ":" .. seat
		if redis.call("GET", lockKey) == bookingId then
			redis.call("DEL", lockKey)
			redis.call("SREM", lockSet, seat)
		end
		if redis.call("HGET", bookedKey, seat) == bookingId then
			redis.call("HDEL", bookedKey, seat)
		end
	end

	redis.call("DEL", holdKey)

	return 1
`)

// Redis Lua script to clean up expired seat locks and return the currently held and
// booked seat codes of a screening.
var querySeatsScript = redis.NewScript(`
	-- KEYS = [seat lock index set, booked seats hash]
	-- ARGV = [screeningID, nowMs]
	local lockSet, bookedKey = KEYS[1], KEYS[2]
	local screeningId, now = ARGV[1], tonumber(ARGV[2])
	local cursor = "0"
	local held = {}
	local expired = {}

	repeat
		local result = redis.call("SSCAN", lockSet, cursor, "COUNT", 100)
		cursor = result[1]

		for _, seat in ipairs(result[2]) do
			local lockKey = "seat_lock:" .. screeningId .. ":" .. seat
			local owner = redis.call("GET", lockKey)
			local alive = false

			if owner then
				local exp = redis.call("HGET", "hold:" .. owner, "expires_at")
				alive = exp and tonumber(exp) > now
			end

			if alive then
				table.insert(held, seat)
			else
				table.insert(expired, seat)
				if owner then
					redis.call("DEL", lockKey)
				end
			end
		end
	until cursor == "0"

	if #expired > 0 then
		redis.call("SREM", lockSet, unpack(expired))
	end

	return {held, redis.call("HKEYS", bookedKey)}
`)

// RedisLedger stores seat occupancy in Redis. Every mutation runs as a single Lua
// script, so check-then-set is atomic across all API instances.
type RedisLedger struct {
	client    redis.UniversalClient
	now       func() time.Time
	lockGrace time.Duration
}

type RedisOption func(*RedisLedger)

func WithLockGrace(d time.Duration) RedisOption {
	return func(l *RedisLedger) {
		if d >= 0 {
			l.lockGrace = d
		}
	}
}

func WithRedisClock(now func() time.Time) RedisOption {
	return func(l *RedisLedger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewRedisLedger(client redis.UniversalClient, opts ...RedisOption) *RedisLedger {
	l := &RedisLedger{
		client:    client,
		now:       time.Now,
		lockGrace: defaultLockGrace,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *RedisLedger) QuerySeats(ctx context.Context, screeningID int) (map[string]domain.SeatStatus, error) {
	keys := []string{seatLockSetKey(screeningID), bookedSeatsKey(screeningID)}

	res, err := querySeatsScript.Run(ctx, l.client, keys, screeningID, l.now().UnixMilli()).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to run query seats script: %w", err)
	}

	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected query seats result length: %d", len(res))
	}

	seats := make(map[string]domain.SeatStatus)

	for _, code := range toStrings(res[0]) {
		seats[code] = domain.SeatHeld
	}

	for _, code := range toStrings(res[1]) {
		seats[code] = domain.SeatBooked
	}

	return seats, nil
}

func (l *RedisLedger) TryReserve(ctx context.Context, hold domain.Hold) (*domain.Hold, error) {
	now := l.now()

	ttl := hold.ExpiresAt.Sub(now) + l.lockGrace
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	keys := []string{
		holdKey(hold.BookingID),
		seatLockSetKey(hold.ScreeningID),
		bookedSeatsKey(hold.ScreeningID),
	}

	args := make([]interface{}, 0, 5+len(hold.SeatCodes))
	args = append(args,
		hold.BookingID.String(),
		hold.ScreeningID,
		hold.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
		ttl.Milliseconds(),
	)
	for _, code := range hold.SeatCodes {
		args = append(args, code)
	}

	res, err := reserveSeatsScript.Run(ctx, l.client, keys, args...).Slice()
	if redis.HasErrorPrefix(err, errHoldCommittedPrefix) {
		return nil, domain.ErrAlreadyResolved
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to run reserve seats script: %w", err)
	}

	if conflicts := toStrings(res); len(conflicts) > 0 {
		return nil, &domain.SeatConflictError{SeatCodes: conflicts}
	}

	result := hold
	return &result, nil
}

func (l *RedisLedger) Commit(ctx context.Context, bookingID uuid.UUID, seatCodes []string) error {
	args := make([]interface{}, 0, 3+len(seatCodes))
	args = append(args, bookingID.String(), committedHoldTTL.Milliseconds(), l.now().UnixMilli())
	for _, code := range seatCodes {
		args = append(args, code)
	}

	err := commitSeatsScript.Run(ctx, l.client, []string{holdKey(bookingID)}, args...).Err()

	switch {
	case err == nil:
		return nil
	case redis.HasErrorPrefix(err, errHoldNotFoundPrefix):
		return domain.ErrHoldNotFound
	case redis.HasErrorPrefix(err, errHoldMismatchPrefix):
		return domain.ErrHoldMismatch
	case redis.HasErrorPrefix(err, errSeatConflictPrefix):
		seat := strings.TrimSpace(strings.TrimPrefix(err.Error(), errSeatConflictPrefix))
		return &domain.SeatConflictError{SeatCodes: []string{seat}}
	default:
		return fmt.Errorf("failed to run commit seats script: %w", err)
	}
}

func (l *RedisLedger) Release(ctx context.Context, bookingID uuid.UUID) error {
	err := releaseSeatsScript.Run(ctx, l.client, []string{holdKey(bookingID)}, bookingID.String()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to run release seats script: %w", err)
	}

	return nil
}

func (l *RedisLedger) GetHold(ctx context.Context, bookingID uuid.UUID) (*domain.Hold, error) {
	fields, err := l.client.HGetAll(ctx, holdKey(bookingID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read hold %s: %w", bookingID, err)
	}

	if len(fields) == 0 {
		return nil, domain.ErrHoldNotFound
	}

	screeningID, err := strconv.Atoi(fields["screening_id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt hold %s: %w", bookingID, err)
	}

	expiresAtMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt hold %s: %w", bookingID, err)
	}

	hold := &domain.Hold{
		BookingID:   bookingID,
		ScreeningID: screeningID,
		SeatCodes:   strings.Split(fields["seats"], ","),
		ExpiresAt:   time.UnixMilli(expiresAtMs).UTC(),
	}

	if fields["state"] == "held" && hold.IsExpired(l.now()) {
		return nil, domain.ErrHoldNotFound
	}

	return hold, nil
}

func holdKey(bookingID uuid.UUID) string {
	return fmt.Sprintf("hold:%s", bookingID)
}

func seatLockSetKey(screeningID int) string {
	return fmt.Sprintf("seat_locks:%d", screeningID)
}

func bookedSeatsKey(screeningID int) string {
	return fmt.Sprintf("seat_booked:%d", screeningID)
}

func toStrings(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	return out
}
