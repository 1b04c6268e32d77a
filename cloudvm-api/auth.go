package cloudvm_api

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/jacksonzamorano/cloudvm"
	"github.com/jacksonzamorano/cloudvm/cloudvm-db"
	"golang.org/x/text/cases"
)

type credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type User struct {
	Id       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type authResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// NormalizeEmail trims and case-folds an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

func decodeBody(req *cloudvm.HttpRequest, target any) error {
	return json.Unmarshal(req.Body, target)
}

func (api *Api) RegisterUser(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	var body credentials
	if err := decodeBody(req, &body); err != nil {
		res.SetError(cloudvm.StatusBadRequest, "Invalid request body")
		return nil
	}
	email := NormalizeEmail(body.Email)
	if email == "" || body.Username == "" || body.Password == "" {
		res.SetError(cloudvm.StatusBadRequest, "Missing required fields")
		return nil
	}

	ctx := req.Ctx()
	_, err := api.Store.FindOne(ctx, UsersCollection, cloudvm_db.Filter{"email": email})
	if err == nil {
		res.SetError(cloudvm.StatusBadRequest, "User already exists")
		return nil
	}
	if !errors.Is(err, cloudvm_db.ErrNoDocument) {
		return err
	}

	hash, err := api.Hasher.Hash(body.Password)
	if err != nil {
		return err
	}
	now := api.now().Unix()
	id, err := api.Store.Insert(ctx, UsersCollection, cloudvm_db.Document{
		"email":     email,
		"username":  body.Username,
		"password":  hash,
		"provider":  "local",
		"createdAt": now,
		"updatedAt": now,
	})
	if cloudvm_db.IsViolation(err, cloudvm_db.PostgresErrorCodeUniqueViolation) {
		res.SetError(cloudvm.StatusBadRequest, "User already exists")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := api.Issuer.Issue(id)
	if err != nil {
		return err
	}
	api.Logger.Info("user registered", "user", id, "request", req.RequestId)
	return res.SetJson(cloudvm.StatusCreated, authResponse{
		Token: token,
		User:  User{Id: id, Email: email, Username: body.Username},
	})
}

func (api *Api) Login(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	var body credentials
	if err := decodeBody(req, &body); err != nil {
		res.SetError(cloudvm.StatusBadRequest, "Invalid request body")
		return nil
	}

	doc, err := api.Store.FindOne(req.Ctx(), UsersCollection, cloudvm_db.Filter{"email": NormalizeEmail(body.Email)})
	if errors.Is(err, cloudvm_db.ErrNoDocument) {
		res.SetError(cloudvm.StatusUnauthorized, "Invalid credentials")
		return nil
	}
	if err != nil {
		return err
	}
	ok, err := api.Hasher.Verify(body.Password, doc.String("password"))
	if err != nil {
		return err
	}
	if !ok {
		res.SetError(cloudvm.StatusUnauthorized, "Invalid credentials")
		return nil
	}

	token, err := api.Issuer.Issue(doc.ID())
	if err != nil {
		return err
	}
	return res.SetJson(cloudvm.StatusOK, authResponse{
		Token: token,
		User:  User{Id: doc.ID(), Email: doc.String("email"), Username: doc.String("username")},
	})
}

func (api *Api) Me(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	if req.UserId == "" {
		res.SetError(cloudvm.StatusUnauthorized, "Unauthorized")
		return nil
	}
	doc, err := api.Store.FindOne(req.Ctx(), UsersCollection, cloudvm_db.Filter{"id": req.UserId})
	if errors.Is(err, cloudvm_db.ErrNoDocument) {
		res.SetError(cloudvm.StatusNotFound, "User not found")
		return nil
	}
	if err != nil {
		return err
	}
	return res.SetJson(cloudvm.StatusOK, User{Id: doc.ID(), Email: doc.String("email"), Username: doc.String("username")})
}
