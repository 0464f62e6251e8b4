package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
)

const (
	JWTSecret = "nimo-mes-test-secret"
	JWTIssuer = "nimo-mes"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// SetupTestDB opens an isolated in-memory SQLite database with all MES tables migrated.
// A single connection is used so every query, including those inside transactions, shares it.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.New().String()[:8])

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := entity.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret, JWTIssuer))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": userID + "@test.com",
		"roles": roles,
		"iss":   JWTIssuer,
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// ManagerToken returns a token for a user holding every production role
func ManagerToken() string {
	return GenerateTestToken("test-manager", "Test Manager",
		[]string{"manager", "production_head", "gm", "store_manager", "planner"})
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedProduct creates a product with the given process names and one raw material per entry of materials.
// materials maps material code to grams per unit; grams per unit of the product is their sum.
func SeedProduct(t *testing.T, db *gorm.DB, code string, processes []string, materials map[string]float64) *entity.Product {
	t.Helper()
	p := &entity.Product{Code: code, Name: "Product " + code}
	for i, name := range processes {
		p.Processes = append(p.Processes, entity.ProductProcess{
			ID:          uuid.New().String(),
			ProductCode: code,
			Name:        name,
			Sequence:    i + 1,
			WorkCenter:  "WC-" + name,
			Weight:      1,
		})
	}
	for mc, grams := range materials {
		p.Materials = append(p.Materials, entity.ProductMaterial{
			ID:           uuid.New().String(),
			ProductCode:  code,
			MaterialCode: mc,
			GramsPerUnit: grams,
		})
		p.GramsPerUnit += grams
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	return p
}

// SeedRawMaterial sets raw material stock
func SeedRawMaterial(t *testing.T, db *gorm.DB, code string, stockKg float64) {
	t.Helper()
	if err := db.Save(&entity.RawMaterial{Code: code, Name: code, StockKg: stockKg}).Error; err != nil {
		t.Fatalf("Failed to seed raw material: %v", err)
	}
}

// SeedFGStock sets loose finished goods stock
func SeedFGStock(t *testing.T, db *gorm.DB, productCode string, units int) {
	t.Helper()
	if err := db.Save(&entity.FGStock{ProductCode: productCode, LooseUnits: units}).Error; err != nil {
		t.Fatalf("Failed to seed FG stock: %v", err)
	}
}

// SeedRoleGrant grants a role to a user, optionally scoped to a work center
func SeedRoleGrant(t *testing.T, db *gorm.DB, userID, role, workCenter string) {
	t.Helper()
	g := &entity.RoleGrant{ID: uuid.New().String(), UserID: userID, Role: role, WorkCenter: workCenter, CreatedAt: time.Now()}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("Failed to seed role grant: %v", err)
	}
}
