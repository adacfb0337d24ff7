package rest

type ResponseType string

const (
	ResponseTypeJSON      ResponseType = "json"
	ResponseTypeText      ResponseType = "text"
	ResponseTypeNoContent ResponseType = "no_content"
)

type EndpointMethod string

const (
	MethodHEAD   EndpointMethod = "Head"
	MethodGET    EndpointMethod = "Get"
	MethodPOST   EndpointMethod = "Post"
	MethodPUT    EndpointMethod = "Put"
	MethodPATCH  EndpointMethod = "Patch"
	MethodDELETE EndpointMethod = "Delete"
)

type ParamLocation string

const (
	InQuery  ParamLocation = "query"
	InPath   ParamLocation = "path"
	InHeader ParamLocation = "header"
)

type ParamType string

const (
	ParamTypeString   ParamType = "string"
	ParamTypeInt      ParamType = "int"
	ParamTypeFloat    ParamType = "float"
	ParamTypeBool     ParamType = "bool"
	ParamTypeDate     ParamType = "date"
	ParamTypeDateTime ParamType = "datetime"
	ParamTypeObjectID ParamType = "objectid"
)

type ActionType string

const (
	ActionTypeRead   ActionType = "read"
	ActionTypeCreate ActionType = "create"
	ActionTypeUpdate ActionType = "update"
	ActionTypeLogin  ActionType = "login"
	ActionTypeLogout ActionType = "logout"
)
