package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"dispatch_tracker/internal/config"
	"dispatch_tracker/internal/middleware"
	"dispatch_tracker/internal/models"
	"dispatch_tracker/internal/store"
)

type signupInput struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	Phone          string `json:"phone"`
	Role           string `json:"role"`
	CompanyName    string `json:"company_name"`
	CompanyAddress string `json:"company_address"`
	CompanyPhone   string `json:"company_phone"`
	CompanyEmail   string `json:"company_email"`
}

// SignupUser registers a user, creating their company when company_name is given.
func SignupUser(c *gin.Context) {
	var input signupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := validateAndNormalizeRole(input.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashedPassword, err := hashPassword(input.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
		return
	}

	user := models.User{
		Name:     input.Name,
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Password: hashedPassword,
		Phone:    input.Phone,
		Role:     role,
	}
	err = config.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if name := strings.TrimSpace(input.CompanyName); name != "" {
			company := models.Company{
				Name:    name,
				Address: input.CompanyAddress,
				Phone:   input.CompanyPhone,
				Email:   input.CompanyEmail,
			}
			if err := tx.Create(&company).Error; err != nil {
				return err
			}
			user.CompanyID = &company.ID
			user.Company = &company
		}
		return tx.Omit("Company").Create(&user).Error
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
			return
		}
		middleware.Log(c).WithError(err).Error("signup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Role, companyOf(user))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  prepareUserResponse(user),
	})
}

func LoginUser(c *gin.Context) {
	var body struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	err := config.DB.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(body.Email))).
		Preload("Company").
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		} else {
			middleware.Log(c).WithError(err).Error("login lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
		}
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(body.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Role, companyOf(user))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  prepareUserResponse(user),
	})
}

// GetProfile returns the caller with their company.
func GetProfile(c *gin.Context) {
	var user models.User
	if err := config.DB.WithContext(c.Request.Context()).Preload("Company").
		First(&user, c.GetUint("user_id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": prepareUserResponse(user)})
}

// UpdateProfile changes the caller's name, email or phone.
func UpdateProfile(c *gin.Context) {
	var input struct {
		Name  *string `json:"name"`
		Email *string `json:"email" binding:"omitempty,email"`
		Phone *string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := config.DB.WithContext(c.Request.Context())
	var user models.User
	if err := db.Preload("Company").First(&user, c.GetUint("user_id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if input.Name != nil {
		user.Name = *input.Name
	}
	if input.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Phone != nil {
		user.Phone = *input.Phone
	}
	if err := db.Omit("Company").Save(&user).Error; err != nil {
		if store.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": prepareUserResponse(user)})
}

// UpdateCompany edits the caller's company details.
func UpdateCompany(c *gin.Context) {
	var input struct {
		Name    *string `json:"company_name"`
		Address *string `json:"company_address"`
		Phone   *string `json:"company_phone"`
		Email   *string `json:"company_email"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	companyID := c.GetUint("company_id")
	if companyID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User has no associated company"})
		return
	}

	db := config.DB.WithContext(c.Request.Context())
	var company models.Company
	if err := db.First(&company, companyID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "company not found"})
		return
	}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "company_name cannot be empty"})
			return
		}
		company.Name = *input.Name
	}
	if input.Address != nil {
		company.Address = *input.Address
	}
	if input.Phone != nil {
		company.Phone = *input.Phone
	}
	if input.Email != nil {
		company.Email = *input.Email
	}
	if err := db.Save(&company).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"company": company})
}

func validateAndNormalizeRole(roleInput string) (string, error) {
	role := strings.ToLower(strings.TrimSpace(roleInput))
	if role == "" {
		role = "dispatcher"
	}
	switch role {
	case "dispatcher", "admin":
		return role, nil
	default:
		return "", errors.New("invalid role")
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func companyOf(user models.User) uint {
	if user.CompanyID == nil {
		return 0
	}
	return *user.CompanyID
}

func prepareUserResponse(user models.User) gin.H {
	responseUser := gin.H{
		"id":         user.ID,
		"created_at": user.CreatedAt,
		"name":       user.Name,
		"email":      user.Email,
		"phone":      user.Phone,
		"role":       user.Role,
	}
	if user.Company != nil {
		responseUser["company_id"] = user.Company.ID
		responseUser["company"] = gin.H{
			"id":      user.Company.ID,
			"name":    user.Company.Name,
			"address": user.Company.Address,
			"phone":   user.Company.Phone,
			"email":   user.Company.Email,
		}
	}
	return responseUser
}

// ListCompanyUsers lists the users of the caller's company.
func ListCompanyUsers(c *gin.Context) {
	var users []models.User
	if err := config.DB.WithContext(c.Request.Context()).
		Where("company_id = ?", c.GetUint("company_id")).
		Order("id").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing users: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}
