package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membooks/membooks-api/internal/models"
)

func TestStorage_CreateUser(t *testing.T) {
	type args struct {
		ctx  context.Context
		user models.User
	}

	testUser := GetTestUserData()

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name: "successful create user",
			args: args{
				ctx: context.Background(),
				user: models.User{
					Email:        testUser.Email,
					Username:     testUser.Username,
					PasswordHash: testUser.PasswordHash,
					Language:     testUser.Language,
				},
			},
			wantErr: false,
			setup:   func(_ *testing.T, _ *TestDataFactory) {},
		},
		{
			name: "duplicate email returns ErrUserExists",
			args: args{
				ctx: context.Background(),
				user: models.User{
					Email:        "taken@example.com",
					Username:     "newuser",
					PasswordHash: "hashedpassword",
					Language:     "en",
				},
			},
			wantErr: true,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, uuid.New().String(), "olduser", "taken@example.com", "hashedpassword", false)
			},
		},
		{
			name: "duplicate username returns ErrUserExists",
			args: args{
				ctx: context.Background(),
				user: models.User{
					Email:        "new@example.com",
					Username:     "takenuser",
					PasswordHash: "hashedpassword",
					Language:     "en",
				},
			},
			wantErr: true,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, uuid.New().String(), "takenuser", "old@example.com", "hashedpassword", false)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			gotUID, err := storage.CreateUser(tt.args.ctx, tt.args.user)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUserExists)
			} else {
				require.NoError(t, err)
				require.NotEmpty(t, gotUID)

				verification := NewTestVerification(storage)
				verification.VerifyUserExists(t, gotUID)
			}
		})
	}
}

func TestStorage_GetUser(t *testing.T) {
	type args struct {
		ctx     context.Context
		userUID string
	}

	tests := []struct {
		name    string
		args    args
		want    *models.User
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "successful get user by UID",
			args: args{
				ctx:     context.Background(),
				userUID: "", // будет установлен в setup
			},
			want: &models.User{
				Email:        "test@example.com",
				Username:     "testuser",
				PasswordHash: "hashedpassword",
				Language:     "en",
				IsPremium:    false,
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", false)
				return userUID
			},
		},
		{
			name: "get non-existing user by UID",
			args: args{
				ctx:     context.Background(),
				userUID: "",
			},
			want:    nil,
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) string { return uuid.New().String() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userUID := tt.setup(t, factory)
			tt.args.userUID = userUID
			if tt.want != nil {
				tt.want.UID = userUID
			}

			got, err := storage.GetUser(tt.args.ctx, tt.args.userUID)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUserNotFound)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, tt.want.UID, got.UID)
				assert.Equal(t, tt.want.Email, got.Email)
				assert.Equal(t, tt.want.Username, got.Username)
				assert.Equal(t, tt.want.PasswordHash, got.PasswordHash)
				assert.Equal(t, tt.want.Language, got.Language)
				assert.Equal(t, tt.want.IsPremium, got.IsPremium)
				assert.Nil(t, got.StripeCustomerID)
			}
		})
	}
}

func TestStorage_GetUserByUsername(t *testing.T) {
	type args struct {
		ctx      context.Context
		username string
	}

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "successful get user by username",
			args: args{
				ctx:      context.Background(),
				username: "testuser",
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", false)
				return userUID
			},
		},
		{
			name: "get non-existing user by username",
			args: args{
				ctx:      context.Background(),
				username: "nonexistent",
			},
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userUID := tt.setup(t, factory)

			got, err := storage.GetUserByUsername(tt.args.ctx, tt.args.username)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUserNotFound)
			} else {
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, userUID, got.UID)
				assert.Equal(t, tt.args.username, got.Username)
			}
		})
	}
}

func TestStorage_GetUserByStripeCustomerID(t *testing.T) {
	type args struct {
		ctx        context.Context
		customerID string
	}

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "successful get user by stripe customer ID",
			args: args{
				ctx:        context.Background(),
				customerID: "cus_test123",
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUserWithCustomerID(t, userUID, "testuser", "test@example.com",
					"hashedpassword", "cus_test123", true)
				return userUID
			},
		},
		{
			name: "get user by unknown stripe customer ID",
			args: args{
				ctx:        context.Background(),
				customerID: "cus_unknown",
			},
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userUID := tt.setup(t, factory)

			got, err := storage.GetUserByStripeCustomerID(tt.args.ctx, tt.args.customerID)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUserNotFound)
			} else {
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, userUID, got.UID)
				require.NotNil(t, got.StripeCustomerID)
				assert.Equal(t, tt.args.customerID, *got.StripeCustomerID)
			}
		})
	}
}

func TestStorage_SetStripeCustomerID(t *testing.T) {
	type args struct {
		ctx        context.Context
		userUID    string
		customerID string
	}

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "successful set stripe customer ID",
			args: args{
				ctx:        context.Background(),
				userUID:    "", // будет установлен в setup
				customerID: "cus_new123",
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", false)
				return userUID
			},
		},
		{
			name: "customer ID already set is not overwritten",
			args: args{
				ctx:        context.Background(),
				userUID:    "",
				customerID: "cus_other456",
			},
			wantErr: true,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUserWithCustomerID(t, userUID, "testuser", "test@example.com",
					"hashedpassword", "cus_first123", false)
				return userUID
			},
		},
		{
			name: "set customer ID for non-existing user",
			args: args{
				ctx:        context.Background(),
				userUID:    "",
				customerID: "cus_new123",
			},
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) string { return uuid.New().String() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userUID := tt.setup(t, factory)
			tt.args.userUID = userUID

			err := storage.SetStripeCustomerID(tt.args.ctx, tt.args.userUID, tt.args.customerID)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUserNotFound)
			} else {
				require.NoError(t, err)

				got, err := storage.GetUser(tt.args.ctx, userUID)
				require.NoError(t, err)
				require.NotNil(t, got.StripeCustomerID)
				assert.Equal(t, tt.args.customerID, *got.StripeCustomerID)
			}
		})
	}
}

func TestStorage_SetStripeCustomerID_KeepsFirstValue(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	userUID := uuid.New().String()
	factory.CreateUserWithCustomerID(t, userUID, "testuser", "test@example.com",
		"hashedpassword", "cus_first123", false)

	err := storage.SetStripeCustomerID(context.Background(), userUID, "cus_other456")
	require.Error(t, err)

	// Проверяем, что первый идентификатор не перезаписан
	got, err := storage.GetUser(context.Background(), userUID)
	require.NoError(t, err)
	require.NotNil(t, got.StripeCustomerID)
	assert.Equal(t, "cus_first123", *got.StripeCustomerID)
}

func TestStorage_SetPremium(t *testing.T) {
	type args struct {
		ctx       context.Context
		userUID   string
		isPremium bool
	}

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "successful grant premium",
			args: args{
				ctx:       context.Background(),
				userUID:   "", // будет установлен в setup
				isPremium: true,
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", false)
				return userUID
			},
		},
		{
			name: "successful revoke premium",
			args: args{
				ctx:       context.Background(),
				userUID:   "",
				isPremium: false,
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", true)
				return userUID
			},
		},
		{
			name: "set premium for non-existing user",
			args: args{
				ctx:       context.Background(),
				userUID:   "",
				isPremium: true,
			},
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) string { return uuid.New().String() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userUID := tt.setup(t, factory)
			tt.args.userUID = userUID

			err := storage.SetPremium(tt.args.ctx, tt.args.userUID, tt.args.isPremium)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUserNotFound)
			} else {
				require.NoError(t, err)

				verification := NewTestVerification(storage)
				verification.VerifyUserPremium(t, userUID, tt.args.isPremium)
			}
		})
	}
}

func TestStorage_ListUsers(t *testing.T) {
	type args struct {
		ctx    context.Context
		limit  int
		offset int
	}

	tests := []struct {
		name      string
		args      args
		wantCount int
		wantErr   bool
		setup     func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name: "successful list users with limit",
			args: args{
				ctx:    context.Background(),
				limit:  2,
				offset: 0,
			},
			wantCount: 2,
			wantErr:   false,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, uuid.New().String(), "user1", "user1@example.com", "hashedpassword1", false)
				factory.CreateUser(t, uuid.New().String(), "user2", "user2@example.com", "hashedpassword2", true)
				factory.CreateUser(t, uuid.New().String(), "user3", "user3@example.com", "hashedpassword3", false)
			},
		},
		{
			name: "successful list users with offset",
			args: args{
				ctx:    context.Background(),
				limit:  10,
				offset: 2,
			},
			wantCount: 1,
			wantErr:   false,
			setup: func(t *testing.T, factory *TestDataFactory) {
				factory.CreateUser(t, uuid.New().String(), "user1", "user1@example.com", "hashedpassword1", false)
				factory.CreateUser(t, uuid.New().String(), "user2", "user2@example.com", "hashedpassword2", false)
				factory.CreateUser(t, uuid.New().String(), "user3", "user3@example.com", "hashedpassword3", false)
			},
		},
		{
			name: "list users from empty table",
			args: args{
				ctx:    context.Background(),
				limit:  10,
				offset: 0,
			},
			wantCount: 0,
			wantErr:   false,
			setup:     func(_ *testing.T, _ *TestDataFactory) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			got, err := storage.ListUsers(tt.args.ctx, tt.args.limit, tt.args.offset)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Len(t, got, tt.wantCount)
			}
		})
	}
}

func TestStorage_UpsertSubscriptionWithPremium(t *testing.T) {
	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("insert creates subscription and grants premium", func(t *testing.T) {
		storage, cleanup := setupTestDatabase(t)
		defer cleanup()

		factory := NewTestDataFactory(storage)
		userUID := uuid.New().String()
		factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", false)

		sub := models.Subscription{
			UserUID:              userUID,
			StripeSubscriptionID: "sub_test123",
			StripePriceID:        "price_premium_monthly",
			Status:               models.StatusActive,
			CurrentPeriodStart:   periodStart,
			CurrentPeriodEnd:     periodEnd,
			CancelAtPeriodEnd:    false,
		}
		err := storage.UpsertSubscriptionWithPremium(context.Background(), sub, true)
		require.NoError(t, err)

		verification := NewTestVerification(storage)
		verification.VerifySubscriptionCount(t, "sub_test123", 1)
		verification.VerifySubscriptionStatus(t, "sub_test123", models.StatusActive, false)
		verification.VerifyUserPremium(t, userUID, true)
	})

	t.Run("repeated upsert updates row in place", func(t *testing.T) {
		storage, cleanup := setupTestDatabase(t)
		defer cleanup()

		factory := NewTestDataFactory(storage)
		userUID := uuid.New().String()
		factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", false)

		sub := models.Subscription{
			UserUID:              userUID,
			StripeSubscriptionID: "sub_test123",
			StripePriceID:        "price_premium_monthly",
			Status:               models.StatusActive,
			CurrentPeriodStart:   periodStart,
			CurrentPeriodEnd:     periodEnd,
			CancelAtPeriodEnd:    false,
		}
		require.NoError(t, storage.UpsertSubscriptionWithPremium(context.Background(), sub, true))

		// Повторная доставка того же события с новым статусом
		sub.Status = models.StatusPastDue
		require.NoError(t, storage.UpsertSubscriptionWithPremium(context.Background(), sub, false))

		verification := NewTestVerification(storage)
		verification.VerifySubscriptionCount(t, "sub_test123", 1)
		verification.VerifySubscriptionStatus(t, "sub_test123", models.StatusPastDue, false)
		verification.VerifyUserPremium(t, userUID, false)
	})
}

func TestStorage_UpdateSubscriptionWithPremium(t *testing.T) {
	type args struct {
		ctx                  context.Context
		stripeSubscriptionID string
		status               string
		cancelAtPeriodEnd    bool
		isPremium            bool
	}

	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "successful update returns owner UID",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_test123",
				status:               models.StatusActive,
				cancelAtPeriodEnd:    true,
				isPremium:            true,
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", false)
				factory.CreateSubscription(t, userUID, "sub_test123", "price_premium_monthly",
					models.StatusTrialing, periodStart, periodEnd, false)
				return userUID
			},
		},
		{
			name: "update unknown subscription returns ErrSubscriptionNotFound",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_unknown",
				status:               models.StatusActive,
				cancelAtPeriodEnd:    false,
				isPremium:            true,
			},
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			ownerUID := tt.setup(t, factory)

			gotUID, err := storage.UpdateSubscriptionWithPremium(tt.args.ctx, tt.args.stripeSubscriptionID,
				tt.args.status, periodStart, periodEnd, tt.args.cancelAtPeriodEnd, tt.args.isPremium)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrSubscriptionNotFound)
			} else {
				require.NoError(t, err)
				assert.Equal(t, ownerUID, gotUID)

				verification := NewTestVerification(storage)
				verification.VerifySubscriptionStatus(t, tt.args.stripeSubscriptionID, tt.args.status,
					tt.args.cancelAtPeriodEnd)
				verification.VerifyUserPremium(t, ownerUID, tt.args.isPremium)
			}
		})
	}
}

func TestStorage_MarkSubscriptionCanceled(t *testing.T) {
	type args struct {
		ctx                  context.Context
		stripeSubscriptionID string
	}

	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "successful cancel revokes premium and keeps row",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_test123",
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", true)
				factory.CreateSubscription(t, userUID, "sub_test123", "price_premium_monthly",
					models.StatusActive, periodStart, periodEnd, true)
				return userUID
			},
		},
		{
			name: "cancel unknown subscription returns ErrSubscriptionNotFound",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_unknown",
			},
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			ownerUID := tt.setup(t, factory)

			gotUID, err := storage.MarkSubscriptionCanceled(tt.args.ctx, tt.args.stripeSubscriptionID)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrSubscriptionNotFound)
			} else {
				require.NoError(t, err)
				assert.Equal(t, ownerUID, gotUID)

				// Строка сохраняется для истории, флаг отмены снимается
				verification := NewTestVerification(storage)
				verification.VerifySubscriptionCount(t, tt.args.stripeSubscriptionID, 1)
				verification.VerifySubscriptionStatus(t, tt.args.stripeSubscriptionID, models.StatusCanceled, false)
				verification.VerifyUserPremium(t, ownerUID, false)
			}
		})
	}
}

func TestStorage_MarkSubscriptionPastDue(t *testing.T) {
	type args struct {
		ctx                  context.Context
		stripeSubscriptionID string
	}

	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "past due keeps premium untouched",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_test123",
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", true)
				factory.CreateSubscription(t, userUID, "sub_test123", "price_premium_monthly",
					models.StatusActive, periodStart, periodEnd, false)
				return userUID
			},
		},
		{
			name: "mark unknown subscription returns ErrSubscriptionNotFound",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_unknown",
			},
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			ownerUID := tt.setup(t, factory)

			gotUID, err := storage.MarkSubscriptionPastDue(tt.args.ctx, tt.args.stripeSubscriptionID)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrSubscriptionNotFound)
			} else {
				require.NoError(t, err)
				assert.Equal(t, ownerUID, gotUID)

				// Единичный неуспешный платёж премиум не отзывает
				verification := NewTestVerification(storage)
				verification.VerifySubscriptionStatus(t, tt.args.stripeSubscriptionID, models.StatusPastDue, false)
				verification.VerifyUserPremium(t, ownerUID, true)
			}
		})
	}
}

func TestStorage_SetCancelAtPeriodEnd(t *testing.T) {
	type args struct {
		ctx                  context.Context
		stripeSubscriptionID string
		cancelAtPeriodEnd    bool
	}

	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory)
	}{
		{
			name: "successful mark cancel at period end",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_test123",
				cancelAtPeriodEnd:    true,
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", true)
				factory.CreateSubscription(t, userUID, "sub_test123", "price_premium_monthly",
					models.StatusActive, periodStart, periodEnd, false)
			},
		},
		{
			name: "successful clear cancel at period end",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_test123",
				cancelAtPeriodEnd:    false,
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", true)
				factory.CreateSubscription(t, userUID, "sub_test123", "price_premium_monthly",
					models.StatusActive, periodStart, periodEnd, true)
			},
		},
		{
			name: "set flag for unknown subscription",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_unknown",
				cancelAtPeriodEnd:    true,
			},
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			tt.setup(t, factory)

			err := storage.SetCancelAtPeriodEnd(tt.args.ctx, tt.args.stripeSubscriptionID, tt.args.cancelAtPeriodEnd)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrSubscriptionNotFound)
			} else {
				require.NoError(t, err)

				verification := NewTestVerification(storage)
				verification.VerifySubscriptionStatus(t, tt.args.stripeSubscriptionID, models.StatusActive,
					tt.args.cancelAtPeriodEnd)
			}
		})
	}
}

func TestStorage_GetSubscriptionByUserUID(t *testing.T) {
	type args struct {
		ctx     context.Context
		userUID string
	}

	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		args      args
		wantSubID string
		wantErr   bool
		setup     func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "returns latest updated subscription",
			args: args{
				ctx:     context.Background(),
				userUID: "", // будет установлен в setup
			},
			wantSubID: "sub_new456",
			wantErr:   false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", true)
				factory.CreateSubscription(t, userUID, "sub_old123", "price_premium_monthly",
					models.StatusCanceled, periodStart, periodEnd, false)
				factory.CreateSubscription(t, userUID, "sub_new456", "price_premium_monthly",
					models.StatusActive, periodStart, periodEnd, false)
				// Гарантируем порядок по updated_at независимо от времени вставки
				_, err := factory.storage.DB.Exec(
					`UPDATE subscriptions SET updated_at = now() + interval '1 hour' WHERE stripe_subscription_id = $1`,
					"sub_new456")
				require.NoError(t, err)
				return userUID
			},
		},
		{
			name: "user without subscription",
			args: args{
				ctx:     context.Background(),
				userUID: "",
			},
			wantSubID: "",
			wantErr:   true,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", false)
				return userUID
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userUID := tt.setup(t, factory)
			tt.args.userUID = userUID

			got, err := storage.GetSubscriptionByUserUID(tt.args.ctx, tt.args.userUID)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrSubscriptionNotFound)
			} else {
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, tt.wantSubID, got.StripeSubscriptionID)
				assert.Equal(t, userUID, got.UserUID)
			}
		})
	}
}

func TestStorage_GetSubscriptionByStripeID(t *testing.T) {
	type args struct {
		ctx                  context.Context
		stripeSubscriptionID string
	}

	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		args    args
		wantErr bool
		setup   func(t *testing.T, factory *TestDataFactory) string
	}{
		{
			name: "successful get subscription by stripe ID",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_test123",
			},
			wantErr: false,
			setup: func(t *testing.T, factory *TestDataFactory) string {
				userUID := uuid.New().String()
				factory.CreateUser(t, userUID, "testuser", "test@example.com", "hashedpassword", true)
				factory.CreateSubscription(t, userUID, "sub_test123", "price_premium_monthly",
					models.StatusActive, periodStart, periodEnd, false)
				return userUID
			},
		},
		{
			name: "get unknown subscription by stripe ID",
			args: args{
				ctx:                  context.Background(),
				stripeSubscriptionID: "sub_unknown",
			},
			wantErr: true,
			setup:   func(_ *testing.T, _ *TestDataFactory) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userUID := tt.setup(t, factory)

			got, err := storage.GetSubscriptionByStripeID(tt.args.ctx, tt.args.stripeSubscriptionID)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrSubscriptionNotFound)
			} else {
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, userUID, got.UserUID)
				assert.Equal(t, tt.args.stripeSubscriptionID, got.StripeSubscriptionID)
				assert.Equal(t, models.StatusActive, got.Status)
				assert.True(t, got.CurrentPeriodEnd.Equal(periodEnd))
			}
		})
	}
}
