package cloudvm_api

import (
	"encoding/json"
	"errors"

	"github.com/jacksonzamorano/cloudvm"
	"github.com/jacksonzamorano/cloudvm/cloudvm-cache"
	"github.com/jacksonzamorano/cloudvm/cloudvm-db"
)

// Vm is the API view of a stored virtual machine record.
type Vm struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	InstanceId string `json:"instanceId"`
	Status     string `json:"status"`
	Region     string `json:"region"`
	UserId     string `json:"userId"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

type vmList struct {
	Vms   []Vm `json:"vms"`
	Total int  `json:"total"`
}

type createVmBody struct {
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	InstanceId string `json:"instanceId"`
	Region     string `json:"region"`
}

type updateVmBody struct {
	Name   *string `json:"name"`
	Status *string `json:"status"`
}

type message struct {
	Id      string `json:"id,omitempty"`
	Message string `json:"message"`
}

func vmListKey(userId string) string {
	return "vms:" + userId
}

func (api *Api) invalidateVms(req *cloudvm.HttpRequest) {
	if api.Cache == nil {
		return
	}
	if err := api.Cache.Delete(req.Ctx(), vmListKey(req.UserId)); err != nil {
		api.Logger.Warn("cache invalidation failed", "user", req.UserId, "error", err)
	}
}

func (api *Api) ListVms(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	ctx := req.Ctx()
	key := vmListKey(req.UserId)
	if api.Cache != nil {
		cached, err := api.Cache.Get(ctx, key)
		if err == nil {
			res.SetStatus(cloudvm.StatusOK)
			res.Json(string(cached))
			return nil
		}
		if !errors.Is(err, cloudvm_cache.ErrCacheMiss) {
			api.Logger.Warn("cache read failed", "key", key, "error", err)
		}
	}

	docs, err := api.Store.Find(ctx, VmsCollection, cloudvm_db.Filter{"userId": req.UserId})
	if err != nil {
		return err
	}
	list := vmList{Vms: make([]Vm, 0, len(docs)), Total: len(docs)}
	for _, doc := range docs {
		var vm Vm
		if err := doc.Decode(&vm); err != nil {
			return err
		}
		list.Vms = append(list.Vms, vm)
	}
	body, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if api.Cache != nil {
		if err := api.Cache.Set(ctx, key, body, api.CacheTTL); err != nil {
			api.Logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	res.SetStatus(cloudvm.StatusOK)
	res.Json(string(body))
	return nil
}

// ownedVm loads the VM named by the :id parameter and checks it belongs to the caller. It
// writes the 404/403 response itself and returns nil when the handler should stop.
func (api *Api) ownedVm(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) (*Vm, error) {
	doc, err := api.Store.FindOne(req.Ctx(), VmsCollection, cloudvm_db.Filter{"id": req.GetParam("id")})
	if errors.Is(err, cloudvm_db.ErrNoDocument) {
		res.SetError(cloudvm.StatusNotFound, "VM not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var vm Vm
	if err := doc.Decode(&vm); err != nil {
		return nil, err
	}
	if vm.UserId != req.UserId {
		res.SetError(cloudvm.StatusForbidden, "Forbidden")
		return nil, nil
	}
	return &vm, nil
}

func (api *Api) GetVm(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	vm, err := api.ownedVm(req, res)
	if vm == nil || err != nil {
		return err
	}
	return res.SetJson(cloudvm.StatusOK, vm)
}

func (api *Api) CreateVm(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	var body createVmBody
	if err := decodeBody(req, &body); err != nil {
		res.SetError(cloudvm.StatusBadRequest, "Invalid request body")
		return nil
	}
	if body.Name == "" || body.Provider == "" || body.InstanceId == "" || body.Region == "" {
		res.SetError(cloudvm.StatusBadRequest, "Missing required fields")
		return nil
	}

	now := api.now().Unix()
	id, err := api.Store.Insert(req.Ctx(), VmsCollection, cloudvm_db.Document{
		"name":       body.Name,
		"provider":   body.Provider,
		"instanceId": body.InstanceId,
		"status":     "unknown",
		"region":     body.Region,
		"userId":     req.UserId,
		"createdAt":  now,
		"updatedAt":  now,
	})
	if err != nil {
		return err
	}
	api.invalidateVms(req)
	return res.SetJson(cloudvm.StatusCreated, message{Id: id, Message: "VM created successfully"})
}

func (api *Api) UpdateVm(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	var body updateVmBody
	if err := decodeBody(req, &body); err != nil {
		res.SetError(cloudvm.StatusBadRequest, "Invalid request body")
		return nil
	}
	vm, err := api.ownedVm(req, res)
	if vm == nil || err != nil {
		return err
	}

	set := cloudvm_db.Document{"updatedAt": api.now().Unix()}
	if body.Name != nil {
		set["name"] = *body.Name
	}
	if body.Status != nil {
		set["status"] = *body.Status
	}
	updated, err := api.Store.Update(req.Ctx(), VmsCollection, cloudvm_db.Filter{"id": vm.Id}, set)
	if err != nil {
		return err
	}
	if updated == 0 {
		res.SetError(cloudvm.StatusNotFound, "VM not found")
		return nil
	}
	api.invalidateVms(req)
	return res.SetJson(cloudvm.StatusOK, message{Message: "VM updated successfully"})
}

func (api *Api) DeleteVm(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	vm, err := api.ownedVm(req, res)
	if vm == nil || err != nil {
		return err
	}
	deleted, err := api.Store.Delete(req.Ctx(), VmsCollection, cloudvm_db.Filter{"id": vm.Id})
	if err != nil {
		return err
	}
	if deleted == 0 {
		res.SetError(cloudvm.StatusNotFound, "VM not found")
		return nil
	}
	api.invalidateVms(req)
	return res.SetJson(cloudvm.StatusOK, message{Message: "VM deleted successfully"})
}
