package cache

import "context"
import "testing"
import "fmt"
import sop "github.com/sharedcode/shardstore"

type user struct {
	Username  string `json:"username"`
	MobileID  int    `json:"mobile_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func TestBasicUse(t *testing.T) {
	c := NewRedisL2Cache(sop.TransactionOptions{})
	ctx := context.Background()

	_, item, _ := c.Get(ctx, "key")

	fmt.Println(item)

	usr := user{
		Username:"foo",
		MobileID:123,
		Email:"gy",
		FirstName:"ger",
		LastName:"rec",
	}

	c.SetStruct(ctx, "fooBar", usr, 0)
	var usr2 user
	found, err := c.GetStruct(ctx, "fooBar", &usr2)
	if !found || err != nil{
		t.Error("Struct foo NOT exists.")
	}
	fmt.Println(usr2)

	_, err = c.Delete(ctx, []string{"fooBar"})

	if err != nil{
		t.Errorf(err.Error())
	}

	found, _ = c.GetStruct(ctx, "fooBar", &user{})
	if found{
		t.Error("Struct foo still exists after delete.")
	}

}
